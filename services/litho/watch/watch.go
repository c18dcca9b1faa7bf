// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reloads the configuration file into a live pipeline
// when it changes on disk.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/Lithograph/services/litho/config"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
)

// ReloadHandler is called after a successful reload, with the loaded
// configuration and the number of variables that changed.
type ReloadHandler func(cfg config.Config, changed int)

// ConfigWatcher watches one configuration file with debouncing.
//
// # Description
//
// Editors save with write-rename pairs, so the watcher registers the
// file's parent directory and filters events down to the target path.
// Changes are debounced, then the file is reloaded and applied to the
// pipeline's parameters. Each applied value fires its variable's normal
// notification, so stale stages empty out exactly as they would for an
// interactive edit.
//
// A reload claims the pipeline's sweep slot for the duration of the
// apply. If a sweep is running the reload is skipped and retried on the
// next change; the sweep owns the parameters until it finishes.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads run on a single goroutine.
type ConfigWatcher struct {
	path     string
	dir      string
	pipe     *pipeline.Pipeline
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	changes  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
	onReload ReloadHandler
}

// Options configures the ConfigWatcher.
type Options struct {
	// DebounceWindow is how long to wait for more changes before
	// reloading. Default: 200ms
	DebounceWindow time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{DebounceWindow: 200 * time.Millisecond}
}

// NewConfigWatcher creates a watcher for the given configuration file.
//
// # Inputs
//
//   - path: Path to the configuration file. The file does not need to
//     exist yet; its directory does.
//   - pipe: Pipeline whose parameters receive reloaded values.
//   - logger: Destination for reload outcomes. nil uses the default.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *ConfigWatcher: Ready-to-use watcher (call Start to begin).
//   - error: Non-nil if the underlying notifier could not be created.
func NewConfigWatcher(path string, pipe *pipeline.Pipeline, logger *slog.Logger, opts *Options) (*ConfigWatcher, error) {
	if pipe == nil {
		return nil, errors.New("watch: pipeline must not be nil")
	}
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		pipe:     pipe,
		logger:   logger.With(slog.String("component", "config_watcher")),
		watcher:  watcher,
		debounce: opts.DebounceWindow,
		changes:  make(chan struct{}, 64),
		done:     make(chan struct{}),
	}, nil
}

// SetOnReload registers a callback invoked after each successful apply.
func (w *ConfigWatcher) SetOnReload(handler ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = handler
}

// Start begins watching for file changes.
//
// Spawns two goroutines: an event processor converting notifier events
// into change ticks, and a debouncer that reloads after a quiet window.
// Both exit when Stop is called or the context is canceled.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *ConfigWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// processEvents filters notifier events down to the watched file.
func (w *ConfigWatcher) processEvents(ctx context.Context) {
	relevant := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&relevant == 0 {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
				// A reload is already pending; this tick adds nothing.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error",
				slog.String("error", err.Error()),
			)
		}
	}
}

// debounceLoop coalesces change ticks and reloads after a quiet window.
func (w *ConfigWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.changes:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// reload loads the file and applies it, holding the sweep slot so the
// apply cannot interleave with a running sweep's parameter writes.
func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping current parameters",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	release, err := w.pipe.AcquireSweep()
	if err != nil {
		w.logger.Warn("config change deferred, sweep in progress",
			slog.String("path", w.path),
		)
		return
	}
	defer release()

	changed := cfg.Apply(w.pipe.Params())
	w.logger.Info("configuration reloaded",
		slog.String("path", w.path),
		slog.Int("changed", changed),
	)

	w.mu.RLock()
	handler := w.onReload
	w.mu.RUnlock()
	if handler != nil {
		handler(cfg, changed)
	}
}
