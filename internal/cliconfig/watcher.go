package cliconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/ticksync/internal/ports"
)

// DefaultDebounce is the quiet period before a changed config file is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes and hands the result to
// onChange. Invalid configurations are logged and skipped.
type Watcher struct {
	path     string
	load     func() (Config, error)
	onChange func(Config)
	logger   ports.Logger
	delay    time.Duration

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. load rebuilds the full configuration.
func NewWatcher(path string, load func() (Config, error), onChange func(Config), logger ports.Logger) *Watcher {
	return &Watcher{
		path:     path,
		load:     load,
		onChange: onChange,
		logger:   logger,
		delay:    DefaultDebounce,
	}
}

// Run watches the directory holding the config file until ctx is done.
// Editors often replace files instead of writing them, so the directory is
// watched rather than the file.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching config file", ports.String("path", w.path))

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config reload failed", ports.String("path", w.path), ports.Err(err))
		return
	}
	w.logger.Info("config reloaded", ports.String("path", w.path), ports.Int("pools", len(cfg.AllPools())))
	w.onChange(cfg)
}
