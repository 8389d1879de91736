package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"useaid/internal/store"
)

// BackupVersion is the format version stamped into exported blobs.
const BackupVersion = 1

// Backup is a portable export of everything sealed: the config, the
// session and milestone lists, and the sealed chain files verbatim.
// Active sessions are deliberately absent; they cannot be restored into a
// live engine.
type Backup struct {
	Version      int               `json:"version"`
	ExportedAt   time.Time         `json:"exported_at"`
	Config       json.RawMessage   `json:"config,omitempty"`
	Sessions     []store.Seal      `json:"sessions"`
	Milestones   []store.Milestone `json:"milestones"`
	SealedChains map[string]string `json:"sealed_chains"`
}

// Backup exports the durable state. The live session, if any, is not
// included.
func (e *Engine) Backup() (*Backup, error) {
	b := &Backup{
		Version:      BackupVersion,
		ExportedAt:   e.now().UTC(),
		Sessions:     e.paths.LoadSeals(),
		Milestones:   e.paths.LoadMilestones(),
		SealedChains: make(map[string]string),
	}

	if raw, err := os.ReadFile(e.paths.ConfigFile()); err == nil && json.Valid(raw) {
		b.Config = raw
	}

	ids, err := e.paths.ListSealedChains()
	if err != nil {
		return nil, fmt.Errorf("session: list sealed chains: %w", err)
	}
	for _, id := range ids {
		contents, err := os.ReadFile(e.paths.SealedChain(id))
		if err != nil {
			return nil, fmt.Errorf("session: read sealed chain %s: %w", id, err)
		}
		b.SealedChains[id+".jsonl"] = string(contents)
	}
	return b, nil
}

// RestoreResult reports what a restore actually added.
type RestoreResult struct {
	SessionsAdded   int `json:"sessions_added"`
	MilestonesAdded int `json:"milestones_added"`
	ChainsAdded     int `json:"chains_added"`
}

// Restore merges a backup into the local state. Existing rows win: seals
// are deduplicated by session ID, milestones by milestone ID, and chain
// files already on disk are never overwritten. The active directory is
// never touched, so restoring a backup of the current state is a no-op.
func (e *Engine) Restore(b *Backup) (*RestoreResult, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: backup is required", ErrInvalidArgument)
	}
	if b.Version != BackupVersion {
		return nil, fmt.Errorf("%w: unsupported backup version %d", ErrInvalidArgument, b.Version)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res := &RestoreResult{}

	seals := e.paths.LoadSeals()
	have := make(map[string]bool, len(seals))
	for _, s := range seals {
		have[s.SessionID] = true
	}
	for _, s := range b.Sessions {
		if s.SessionID == "" || have[s.SessionID] {
			continue
		}
		seals = append(seals, s)
		have[s.SessionID] = true
		res.SessionsAdded++
	}
	if res.SessionsAdded > 0 {
		if err := store.WriteJSON(e.paths.SessionsFile(), seals, store.PermDataFile); err != nil {
			return nil, fmt.Errorf("session: restore seals: %w", err)
		}
	}

	milestones := e.paths.LoadMilestones()
	haveM := make(map[string]bool, len(milestones))
	for _, m := range milestones {
		haveM[m.ID] = true
	}
	for _, m := range b.Milestones {
		if m.ID == "" || haveM[m.ID] {
			continue
		}
		milestones = append(milestones, m)
		haveM[m.ID] = true
		res.MilestonesAdded++
	}
	if res.MilestonesAdded > 0 {
		if err := store.WriteJSON(e.paths.MilestonesFile(), milestones, store.PermDataFile); err != nil {
			return nil, fmt.Errorf("session: restore milestones: %w", err)
		}
	}

	for name, contents := range b.SealedChains {
		// Filenames come from an external blob; refuse anything that is
		// not a bare chain file name.
		if filepath.Base(name) != name || filepath.Ext(name) != ".jsonl" {
			return nil, fmt.Errorf("%w: bad chain filename %q", ErrInvalidArgument, name)
		}
		dst := filepath.Join(e.paths.SealedDir(), name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := os.MkdirAll(e.paths.SealedDir(), store.PermDataDir); err != nil {
			return nil, fmt.Errorf("session: create sealed dir: %w", err)
		}
		if err := store.WriteFileAtomic(dst, []byte(contents), store.PermDataFile); err != nil {
			return nil, fmt.Errorf("session: restore chain %s: %w", name, err)
		}
		res.ChainsAdded++
	}

	// The backed-up config only fills a hole; a live config is not
	// overwritten by a restore.
	if len(b.Config) > 0 {
		if _, err := os.Stat(e.paths.ConfigFile()); os.IsNotExist(err) {
			if err := store.WriteFileAtomic(e.paths.ConfigFile(), b.Config, store.PermDataFile); err != nil {
				return nil, fmt.Errorf("session: restore config: %w", err)
			}
		}
	}

	return res, nil
}
