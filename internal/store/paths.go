package store

import (
	"os"
	"path/filepath"
	"runtime"
)

// EnvHome overrides the base directory; tests and E2E harnesses set it.
const EnvHome = "USEAI_HOME"

// Paths resolves every on-disk location under the base directory.
type Paths struct {
	Base string
}

// DefaultPaths resolves the base directory from USEAI_HOME or the
// platform default.
func DefaultPaths() Paths {
	if home := os.Getenv(EnvHome); home != "" {
		return Paths{Base: home}
	}
	return Paths{Base: defaultBaseDir()}
}

// defaultBaseDir returns the platform-specific default data directory.
func defaultBaseDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "useai")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "useai")
	default: // Linux and other Unix
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			homeDir, _ := os.UserHomeDir()
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataHome, "useai")
	}
}

// ConfigFile is the persistent config mapping.
func (p Paths) ConfigFile() string { return filepath.Join(p.Base, "config.json") }

// SessionsFile is the append-only list of session seals.
func (p Paths) SessionsFile() string { return filepath.Join(p.Base, "sessions.json") }

// MilestonesFile is the list of milestones.
func (p Paths) MilestonesFile() string { return filepath.Join(p.Base, "milestones.json") }

// KeystoreFile is the encrypted signing key.
func (p Paths) KeystoreFile() string { return filepath.Join(p.Base, "keystore.json") }

// PIDFile records the running daemon's pid, port and start time.
func (p Paths) PIDFile() string { return filepath.Join(p.Base, "daemon.pid") }

// LogFile is the supervisor-managed daemon stdout/stderr capture.
func (p Paths) LogFile() string { return filepath.Join(p.Base, "daemon.log") }

// ActiveDir holds in-flight session chain files.
func (p Paths) ActiveDir() string { return filepath.Join(p.Base, "data", "active") }

// SealedDir holds sealed session chain files.
func (p Paths) SealedDir() string { return filepath.Join(p.Base, "data", "sealed") }

// ActiveChain is the chain file for an in-flight session.
func (p Paths) ActiveChain(sessionID string) string {
	return filepath.Join(p.ActiveDir(), sessionID+".jsonl")
}

// SealedChain is the chain file for a sealed session.
func (p Paths) SealedChain(sessionID string) string {
	return filepath.Join(p.SealedDir(), sessionID+".jsonl")
}

// EnsureLayout creates the directory tree.
func (p Paths) EnsureLayout() error {
	for _, dir := range []string{p.Base, p.ActiveDir(), p.SealedDir()} {
		if err := os.MkdirAll(dir, PermDataDir); err != nil {
			return err
		}
	}
	return nil
}
