// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/morganforge/thinkchat/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileKV stores the key-value map as one JSON file. Writes go through the
// atomic write helper so a crash mid-save never corrupts the file.
type FileKV struct {
	path string

	mu   sync.Mutex
	data map[string]string
}

// NewFileKV opens (or creates) a file-backed store at path. A missing file is
// an empty store; an unreadable or corrupted file is logged and treated the
// same way, so stale state never blocks startup.
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	kv := &FileKV{
		path: path,
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("storage: could not read %s, starting empty: %v", path, err)
		}
		return kv, nil
	}
	if err := json.Unmarshal(raw, &kv.data); err != nil {
		log.Printf("storage: corrupted state file %s, starting empty: %v", path, err)
		kv.data = make(map[string]string)
	}
	return kv, nil
}

// Path returns the backing file path. The watcher uses it.
func (f *FileKV) Path() string {
	return f.path
}

// Get returns the value for key and whether it was present.
func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

// Set stores the value and persists the whole map.
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = value

	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(f.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Reload re-reads the backing file, replacing in-memory state. Called by the
// watcher when the file changes externally.
func (f *FileKV) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.data = make(map[string]string)
			return nil
		}
		return fmt.Errorf("failed to reload state file: %w", err)
	}

	fresh := make(map[string]string)
	if err := json.Unmarshal(raw, &fresh); err != nil {
		return fmt.Errorf("failed to decode state file: %w", err)
	}
	f.data = fresh
	return nil
}

// Close is a no-op for the file backend.
func (f *FileKV) Close() error {
	return nil
}
