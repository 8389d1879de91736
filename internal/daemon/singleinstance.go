package daemon

import (
	"fmt"
	"net"
	"time"
)

// termGrace is how long a superseded daemon gets to exit after SIGTERM
// before it is killed.
const termGrace = 5 * time.Second

// ensureSingleInstance resolves the PID file before binding:
//
//  1. A live same-version daemon means this process is redundant.
//  2. A live daemon of another version is terminated and replaced.
//  3. A stale PID file is deleted.
func (s *Server) ensureSingleInstance() error {
	pf, ok := ReadPIDFile(s.paths)
	if !ok {
		return nil
	}

	if pidAlive(pf.PID) {
		if h, err := probeHealth(pf.Port, healthTimeout); err == nil {
			if h.Version == Version {
				return ErrAlreadyRunning
			}
			s.log.Info("replacing daemon of different version",
				"pid", pf.PID, "running_version", h.Version, "our_version", Version)
		}
		if err := terminate(pf.PID, termGrace); err != nil {
			return fmt.Errorf("daemon: terminate pid %d: %w", pf.PID, err)
		}
	}

	RemovePIDFile(s.paths)
	return nil
}

// bindPort binds the loopback listener. A port squatter is terminated and
// the bind retried once; a second failure is fatal.
func (s *Server) bindPort() (net.Listener, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("daemon: bind %s: %w", addr, err)
	}

	pids := portHolders(s.port)
	if len(pids) == 0 {
		return nil, fmt.Errorf("daemon: port %d in use and holder unknown: %w", s.port, err)
	}
	for _, pid := range pids {
		s.log.Warn("terminating process holding daemon port", "pid", pid, "port", s.port)
		terminate(pid, termGrace)
	}

	ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: port %d still in use after retry: %w", s.port, err)
	}
	return ln, nil
}
