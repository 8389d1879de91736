//go:build linux

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/godbus/dbus/v5"
)

// unitDir is the systemd user unit directory.
func unitDir() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "systemd", "user")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user")
}

// Install writes the systemd user unit and enables it. Returns the unit
// file path.
func Install(execPath, logPath string) (string, error) {
	unit, err := renderSystemdUnit(execPath)
	if err != nil {
		return "", err
	}

	dir := unitDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("supervisor: create unit dir: %w", err)
	}
	path := filepath.Join(dir, SystemdUnit)
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		return "", fmt.Errorf("supervisor: write unit: %w", err)
	}

	// Best-effort activation; a missing user manager (e.g. containers)
	// leaves the unit installed for the next login.
	exec.Command("systemctl", "--user", "daemon-reload").Run()
	exec.Command("systemctl", "--user", "enable", "--now", SystemdUnit).Run()
	return path, nil
}

// Uninstall disables and removes the unit.
func Uninstall() error {
	exec.Command("systemctl", "--user", "disable", "--now", SystemdUnit).Run()
	path := filepath.Join(unitDir(), SystemdUnit)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recover clears the unit's failed state so that a daemon disabled by the
// start limit can be started again. Talks to the user manager over the
// session bus.
func Recover() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("supervisor: connect session bus: %w", err)
	}
	defer conn.Close()

	manager := conn.Object("org.freedesktop.systemd1", "/org/freedesktop/systemd1")
	call := manager.Call("org.freedesktop.systemd1.Manager.ResetFailedUnit", 0, SystemdUnit)
	if call.Err != nil {
		return fmt.Errorf("supervisor: reset failed unit: %w", call.Err)
	}
	return nil
}
