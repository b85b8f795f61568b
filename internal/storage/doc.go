// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation state as two key-value pairs.
//
// # Key Types
//
//   - KV: the backend interface (Get, Set, Close)
//   - FileKV: single JSON file, atomic writes
//   - SQLiteKV: one kv table in a SQLite database
//   - Watcher: reloads a FileKV when the file changes on disk
//
// The keys are fixed: ConversationsKey holds the JSON-encoded conversation
// list and ActiveConversationKey holds the active conversation id, where the
// empty string means none. Everything above this package treats persistence
// as fire-and-forget; failures are logged and never propagated.
package storage
