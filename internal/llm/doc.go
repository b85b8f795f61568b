// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm implements the streaming chat client.
//
// # Key Types
//
//   - Client: configured endpoint access (base URL, model, key, wall clock)
//   - StreamSession: one streaming exchange, driven through its states
//   - Callbacks: per-frame events plus exactly-once terminal notification
//   - Transport: the seam the store depends on; *Client implements it
//
// # Usage
//
//	client := llm.NewClient(apiKey).WithModel("deepseek-reasoner")
//	err := client.SendStreamMessage(ctx, history, llm.Callbacks{
//		OnReasoning: func(text string) { ... },
//		OnContent:   func(text string) { ... },
//		OnComplete:  func() { ... },
//		OnError:     func(err error) { ... },
//	})
//
// A session moves Idle -> Sending -> Streaming and ends in exactly one of
// Completed, Errored, or TimedOut. The terminal callback fires once: either
// OnComplete on a clean end of stream, or OnError with ErrTimeout, an
// *APIError carrying the HTTP status, or a wrapped network error.
package llm
