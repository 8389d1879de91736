//go:build darwin

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func agentPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", LaunchdLabel+".plist")
}

// Install writes the launchd agent plist and loads it. Returns the plist
// path.
func Install(execPath, logPath string) (string, error) {
	plist, err := renderLaunchdPlist(execPath, logPath)
	if err != nil {
		return "", err
	}

	path := agentPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("supervisor: create LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(plist), 0644); err != nil {
		return "", fmt.Errorf("supervisor: write plist: %w", err)
	}

	// Reload so an edited plist takes effect immediately.
	exec.Command("launchctl", "unload", path).Run()
	exec.Command("launchctl", "load", path).Run()
	return path, nil
}

// Uninstall unloads and removes the agent.
func Uninstall() error {
	path := agentPath()
	exec.Command("launchctl", "unload", path).Run()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recover kickstarts the agent, clearing launchd's backoff for a service
// it has given up on.
func Recover() error {
	target := fmt.Sprintf("gui/%d/%s", os.Getuid(), LaunchdLabel)
	exec.Command("launchctl", "enable", target).Run()
	if out, err := exec.Command("launchctl", "kickstart", "-k", target).CombinedOutput(); err != nil {
		return fmt.Errorf("supervisor: kickstart: %v: %s", err, out)
	}
	return nil
}
