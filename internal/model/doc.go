// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: container for a chat session with messages and metadata
//   - Message: single message with role, content, timestamp, and optional
//     reasoning text accumulated during streaming
//   - Role: message role enumeration (user, assistant)
//
// # Usage
//
// Create a conversation and add a message:
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("Hello!"))
//
// Timestamps are plain int64 milliseconds since the Unix epoch, so persisted
// JSON stays free of time.Time encoding details and compares cheaply.
package model
