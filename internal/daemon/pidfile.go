package daemon

import (
	"os"
	"time"

	"useaid/internal/store"
)

// PIDFile is the on-disk record of the running daemon.
type PIDFile struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// ReadPIDFile loads the PID file; a missing or malformed file reads as
// absent.
func ReadPIDFile(paths store.Paths) (*PIDFile, bool) {
	var pf PIDFile
	if !store.ReadJSON(paths.PIDFile(), &pf) {
		return nil, false
	}
	if pf.PID <= 0 {
		return nil, false
	}
	return &pf, true
}

// WritePIDFile records this process as the daemon.
func WritePIDFile(paths store.Paths, port int, startedAt time.Time) error {
	return store.WriteJSON(paths.PIDFile(), PIDFile{
		PID:       os.Getpid(),
		Port:      port,
		StartedAt: startedAt.UTC(),
	}, store.PermDataFile)
}

// RemovePIDFile deletes the PID file; a missing file is not an error.
func RemovePIDFile(paths store.Paths) {
	os.Remove(paths.PIDFile())
}
