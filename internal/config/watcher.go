package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"useaid/internal/store"
)

// Watcher reloads the live config when config.json is edited externally.
// Events are debounced so that the write-temp-then-rename protocol
// produces a single reload.
type Watcher struct {
	paths  store.Paths
	cfg    *Config
	onLoad func(*Config)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup
}

// debounce window for rename storms.
const debounceInterval = 250 * time.Millisecond

// NewWatcher creates a watcher that refreshes cfg in place. onLoad, if
// non-nil, runs after each successful reload.
func NewWatcher(paths store.Paths, cfg *Config, onLoad func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		paths:     paths,
		cfg:       cfg,
		onLoad:    onLoad,
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}, nil
}

// Start watches the config file's directory (the file itself disappears
// during atomic rewrites).
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.paths.ConfigFile())); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	target := filepath.Base(w.paths.ConfigFile())

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(debounceInterval)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			next := Load(w.paths)
			w.cfg.Replace(next)
			if w.onLoad != nil {
				w.onLoad(w.cfg)
			}

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}
