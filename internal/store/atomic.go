// Package store owns everything the daemon persists: atomic JSON documents
// (config, sessions list, milestones list, keystore), per-session JSONL
// chain files, and the directory layout rooted at USEAI_HOME.
//
// All JSON documents follow the same protocol: write to `path.<pid>.tmp`,
// fsync, rename. Readers treat a missing or malformed file as the supplied
// default, so a partially written document is never observed.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// File permission constants.
const (
	// PermSecretFile is for files containing secrets (keystore).
	PermSecretFile os.FileMode = 0600

	// PermDataFile is for regular data files.
	PermDataFile os.FileMode = 0600

	// PermDataDir is for data directories.
	PermDataDir os.FileMode = 0700
)

// Errors
var (
	ErrAtomicWriteFailed = errors.New("store: atomic write failed")
)

// WriteFileAtomic writes data via a temp file in the same directory,
// fsyncs, then renames over the destination. On Windows the rename is
// retried briefly to ride out sharing violations from concurrent readers.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermDataDir); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}

	if err := renameWithRetry(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// renameWithRetry renames src over dst. Rename is atomic on POSIX; on
// Windows a concurrent reader can hold the destination open, so retry
// for a short window before giving up.
func renameWithRetry(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	for i := 0; i < 10; i++ {
		time.Sleep(50 * time.Millisecond)
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
	}
	return err
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data, perm)
}

// ReadJSON reads a JSON document into v. A missing or malformed file
// leaves v untouched and returns false; the caller's zero value stands
// in as the default.
func ReadJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}
