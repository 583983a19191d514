package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// ReloadFunc is invoked with the freshly parsed configuration after the
// watched file changes and revalidates.
type ReloadFunc func(cfg *Config)

// Watcher reloads the configuration file when it changes on disk.
//
// Editors frequently replace files via rename, so the watch is placed on
// the parent directory and events are filtered down to the config path.
// Rapid event bursts are coalesced with a short debounce.
type Watcher struct {
	path   string
	reload ReloadFunc
	logger *telemetry.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	debounce *time.Timer
	cancel   context.CancelFunc
}

const debounceDelay = 500 * time.Millisecond

// NewWatcher creates a watcher for the config file at path. The reload
// callback runs on the watcher goroutine; keep it quick.
func NewWatcher(path string, reload ReloadFunc, logger *telemetry.Logger) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		reload: reload,
		logger: logger,
	}
}

// Start begins watching. It returns once the filesystem watch is
// established; reloads happen in the background until Stop is called or
// ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.fsw = fsw
	w.cancel = cancel
	w.mu.Unlock()

	go w.processEvents(watchCtx, fsw)

	w.logger.WithField("path", w.path).Debug("config watcher started")
	return nil
}

// Stop terminates the watch. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
}

func (w *Watcher) processEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

// scheduleReload coalesces bursts of events into a single reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.doReload)
}

func (w *Watcher) doReload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Warn("config reload failed, keeping previous configuration")
		return
	}

	w.logger.WithField("path", w.path).Info("configuration reloaded")
	w.reload(cfg)
}
