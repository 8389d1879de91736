//go:build !windows

package daemon

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pidAlive reports whether a process exists. Signal 0 performs the
// existence check without delivering anything.
func pidAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// terminate sends SIGTERM, waits up to grace for the process to exit,
// then SIGKILLs.
func terminate(pid int, grace time.Duration) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

// detachedSysProcAttr detaches a spawned daemon from the caller's session
// so it survives the launcher exiting.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// isAddrInUse unwraps a bind failure down to EADDRINUSE.
func isAddrInUse(err error) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == unix.EADDRINUSE
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// portHolders resolves the PIDs listening on a local TCP port via lsof.
// Missing lsof or no output reads as unknown.
func portHolders(port int) []int {
	out, err := exec.Command("lsof", "-ti", fmt.Sprintf("tcp:%d", port)).Output()
	if err != nil {
		return nil
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}
