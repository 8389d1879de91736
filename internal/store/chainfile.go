package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"useaid/internal/chain"
)

// Errors
var (
	ErrChainNotFound = errors.New("store: chain file not found")
)

// AppendRecord appends one record as a complete JSON line to the session's
// active chain file, flushed synchronously. The write either lands whole or
// not at all from a reader's point of view: readers stop at the last
// complete line.
func (p Paths) AppendRecord(sessionID string, r *chain.Record) error {
	if err := os.MkdirAll(p.ActiveDir(), PermDataDir); err != nil {
		return fmt.Errorf("create active dir: %w", err)
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(p.ActiveChain(sessionID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, PermDataFile)
	if err != nil {
		return fmt.Errorf("open chain: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync chain: %w", err)
	}
	return nil
}

// ReadChain reads all complete records from a chain file. A trailing
// partial line (torn write from a crash) is silently dropped.
func ReadChain(path string) ([]*chain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	defer f.Close()

	var records []*chain.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r chain.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Partial last line; stop here.
			break
		}
		records = append(records, &r)
	}
	if err := scanner.Err(); err != nil {
		return records, err
	}
	return records, nil
}

// SealChain moves a session's chain file from the active to the sealed
// directory atomically. Idempotent: a file already sealed is left alone.
func (p Paths) SealChain(sessionID string) error {
	src := p.ActiveChain(sessionID)
	dst := p.SealedChain(sessionID)

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			if _, err := os.Stat(dst); err == nil {
				return nil // already sealed
			}
			return ErrChainNotFound
		}
		return err
	}

	if err := os.MkdirAll(p.SealedDir(), PermDataDir); err != nil {
		return fmt.Errorf("create sealed dir: %w", err)
	}
	return renameWithRetry(src, dst)
}

// ListActiveChains returns the session IDs with an in-flight chain file.
func (p Paths) ListActiveChains() ([]string, error) {
	return listChainIDs(p.ActiveDir())
}

// ListSealedChains returns the session IDs with a sealed chain file.
func (p Paths) ListSealedChains() ([]string, error) {
	return listChainIDs(p.SealedDir())
}

func listChainIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}

// DiskUsage sums the on-disk bytes of every file under the base directory.
func (p Paths) DiskUsage() int64 {
	var total int64
	filepath.Walk(p.Base, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
