// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// STATE FILE WATCHER
// =============================================================================

// watchDebounce coalesces bursts of write events into one reload. Atomic
// writes (temp file + rename) produce several events per save.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads a file-backed store when its state file changes on disk,
// e.g. when a second instance saved a conversation.
type Watcher struct {
	kv       *FileKV
	onChange func()
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher for the store's state file. onChange fires
// after each successful reload; it may be nil.
func NewWatcher(kv *FileKV, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{kv: kv, onChange: onChange, watcher: fsw}, nil
}

// Watch starts watching. The state file itself may not exist yet (or is
// replaced on every save), so the parent directory is watched instead.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.kv.Path())); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.watcher.Close()
}

// run drains events, debounces, and reloads.
func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Clean(w.kv.Path())
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.kv.Reload(); err != nil {
				log.Printf("storage: reload after external change failed: %v", err)
				continue
			}
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("storage: watcher error: %v", err)
		}
	}
}
