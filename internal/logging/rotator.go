package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator writes to a log file and rotates it when it exceeds the
// configured size. Rotated files carry a timestamp suffix; only the newest
// MaxBackups are kept.
type FileRotator struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewFileRotator opens (or creates) the log file for appending.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("logging: file output requires FilePath")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	r := &FileRotator{
		path:       cfg.FilePath,
		maxBytes:   cfg.MaxSize * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.f = f
	r.size = info.Size()
	return nil
}

// Write appends to the current file, rotating first if the entry would
// push it past the size limit.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxBytes > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate renames the current file aside and opens a fresh one. Callers
// hold r.mu.
func (r *FileRotator) rotate() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	if err := os.Rename(r.path, fmt.Sprintf("%s.%s", r.path, stamp)); err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	r.prune()
	return nil
}

// prune removes rotated files beyond MaxBackups, oldest first.
func (r *FileRotator) prune() {
	if r.maxBackups <= 0 {
		return
	}
	matches, err := filepath.Glob(r.path + ".*")
	if err != nil {
		return
	}
	var backups []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			backups = append(backups, m)
		}
	}
	if len(backups) <= r.maxBackups {
		return
	}
	sort.Strings(backups) // timestamp suffixes sort chronologically
	for _, old := range backups[:len(backups)-r.maxBackups] {
		os.Remove(old)
	}
}

// Sync flushes the current file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Sync()
}

// Close closes the current file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
