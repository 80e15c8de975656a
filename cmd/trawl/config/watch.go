// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches editor write bursts into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
//
// The containing directory is watched rather than the file itself,
// since editors typically replace the file by rename. Files that fail
// to parse or validate are logged and skipped, keeping the last good
// configuration in effect.
//
// Thread Safety: the handler is called from a single goroutine.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	handler func(*TrawlConfig)

	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching the config file at path, invoking handler with
// each successfully reloaded configuration. Call Stop when done.
func Watch(path string, handler func(*TrawlConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		handler: handler,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// loop debounces change events and reloads.
func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("Ignoring config change that failed to load",
					"path", w.path, "error", err)
				continue
			}
			slog.Info("Config reloaded", "path", w.path)
			w.handler(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}
