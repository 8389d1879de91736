//go:build windows

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

func startupPath() (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		return "", fmt.Errorf("supervisor: APPDATA not set")
	}
	return filepath.Join(appData, "Microsoft", "Windows", "Start Menu",
		"Programs", "Startup", StartupVBS), nil
}

// Install writes a Startup-folder VBS launcher that runs the daemon
// hidden. Returns the script path.
func Install(execPath, logPath string) (string, error) {
	script, err := renderStartupVBS(execPath)
	if err != nil {
		return "", err
	}
	path, err := startupPath()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return "", fmt.Errorf("supervisor: write startup script: %w", err)
	}
	return path, nil
}

// Uninstall removes the launcher.
func Uninstall() error {
	path, err := startupPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recover is a no-op: the Startup folder has no crash-loop state.
func Recover() error {
	return nil
}
