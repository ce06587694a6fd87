package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"memoryd/internal/logging"
)

// Watcher hot-reloads the config file when it changes on disk. Only the
// privacy and logging sections take effect at runtime; structural settings
// (paths, budgets) require a restart and are deliberately not swapped.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	mu      sync.RWMutex
	current *Config
	onSwap  func(*Config)
	done    chan struct{}
}

// NewWatcher starts watching path. onSwap, if non-nil, runs after every
// successful reload with the fresh config.
func NewWatcher(path string, initial *Config, onSwap func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would go stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		current: initial,
		onSwap:  onSwap,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := Load(w.path)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Config reload failed, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	w.current = fresh
	w.mu.Unlock()

	logging.Boot("Config reloaded from %s", w.path)
	if w.onSwap != nil {
		w.onSwap(fresh)
	}
}
