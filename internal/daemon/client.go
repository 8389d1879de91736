package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// Client-side timeouts.
const (
	healthTimeout = 3 * time.Second
	spawnWait     = 60 * time.Second
	spawnPoll     = 500 * time.Millisecond
)

// probeHealth calls GET /health on a local daemon.
func probeHealth(port int, timeout time.Duration) (*Health, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon: health returned %d", resp.StatusCode)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("daemon: decode health: %w", err)
	}
	return &h, nil
}

// Probe reports the running daemon's health, if any.
func Probe(port int) (*Health, error) {
	return probeHealth(port, healthTimeout)
}

// EnsureDaemon makes sure a daemon of the expected version is serving on
// port. If not, it spawns execPath with args as a detached child and polls
// /health until the daemon answers or the wait deadline passes. Used by
// AI-tool launchers.
func EnsureDaemon(execPath string, args []string, port int, logPath string) error {
	if h, err := probeHealth(port, healthTimeout); err == nil && h.Version == Version {
		return nil
	}

	cmd := exec.Command(execPath, args...)
	cmd.SysProcAttr = detachedSysProcAttr()
	cmd.Stdin = nil
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600); err == nil {
			cmd.Stdout = f
			cmd.Stderr = f
			defer f.Close()
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: spawn %s: %w", execPath, err)
	}
	cmd.Process.Release()

	deadline := time.Now().Add(spawnWait)
	for time.Now().Before(deadline) {
		if h, err := probeHealth(port, healthTimeout); err == nil && h.Version == Version {
			return nil
		}
		time.Sleep(spawnPoll)
	}
	return fmt.Errorf("daemon: did not become healthy within %s", spawnWait)
}
