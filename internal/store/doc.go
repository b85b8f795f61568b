// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns conversation state and send orchestration.
//
// # Key Types
//
//   - Store: conversations (most-recent-first), the active id, and the
//     isLoading/isStreaming session flags, plus every mutation operation
//
// The store is the only contract a UI layer may depend on. It consumes a
// Transport for streaming and a KV for persistence; both are injected so
// tests can use fakes. Persistence is fire-and-forget: every mutation saves,
// and a failed save is logged, never surfaced.
//
// SendMessage converts all failure into an in-conversation diagnostic
// assistant message. It does not guard against a concurrent second call; the
// REPL is single-threaded, so the window is accepted rather than locked.
package store
