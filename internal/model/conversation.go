// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/morganforge/thinkchat/internal/util"
)

// TitleRunes is the number of characters of the first user message used as
// the conversation title.
const TitleRunes = 20

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
//
// Messages keep insertion order and are never reordered; UpdatedAt is
// refreshed on every message mutation.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt int64      `json:"createdAt"` // ms since epoch
	UpdatedAt int64      `json:"updatedAt"` // ms since epoch

	// Aggregate usage counters reported by the endpoint, when available
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
}

// NewConversation creates a new empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := NowMillis()
	return &Conversation{
		ID:        generateConversationID(),
		Title:     "New Conversation",
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message, bumps UpdatedAt, and derives the title when
// this is the first message and it came from the user.
func (c *Conversation) AddMessage(msg *Message) {
	first := len(c.Messages) == 0
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = NowMillis()

	if first && msg.Role == RoleUser {
		c.Title = DeriveTitle(msg.Content)
	}
}

// GetMessageByID returns a message by its ID, or nil.
func (c *Conversation) GetMessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// Tail returns the most recent n messages (all of them when fewer exist).
// The returned slice aliases the conversation's backing array.
func (c *Conversation) Tail(n int) []*Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// DeriveTitle derives a conversation title from the first user message: the
// first TitleRunes characters, with an ellipsis marker appended only when the
// content is actually longer.
func DeriveTitle(content string) string {
	return util.HeadRunes(content, TitleRunes)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
