// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk, so theme or
// backend URL edits take effect without restarting the client.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching the config file. onChange is called with the
// freshly loaded config after each successful reload; parse failures keep
// the previous config and are silently dropped (the file is often saved
// mid-edit).
func Watch(onChange func(*Config)) (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files by rename
	// which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors fire bursts of events per save; coalesce them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				cfg, err := Load()
				if err != nil {
					return
				}
				w.onChange(cfg)
			})
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
