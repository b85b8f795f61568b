// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
)

// The store persists exactly two keys. An empty string under
// ActiveConversationKey means "no active conversation".
const (
	// ConversationsKey holds the JSON-encoded conversation list.
	ConversationsKey = "conversations"

	// ActiveConversationKey holds the id of the active conversation.
	ActiveConversationKey = "active_conversation"
)

// Backend names accepted in config.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned for a backend name that is neither file nor
// sqlite.
var ErrUnknownBackend = errors.New("unknown storage backend")

// KV is a minimal persistent key-value store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores the value for key, overwriting any previous value.
	Set(key, value string) error

	// Close releases any held resources.
	Close() error
}

// Open creates the KV backend named in config. path is the file path for the
// file backend or the database path for sqlite.
func Open(backend, path string) (KV, error) {
	switch backend {
	case BackendFile, "":
		return NewFileKV(path)
	case BackendSQLite:
		return NewSQLiteKV(path)
	default:
		return nil, ErrUnknownBackend
	}
}
