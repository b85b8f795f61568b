// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/morganforge/thinkchat/internal/llm"
	"github.com/morganforge/thinkchat/internal/model"
	"github.com/morganforge/thinkchat/internal/sse"
	"github.com/morganforge/thinkchat/internal/storage"
)

// historyTail bounds how many trailing messages are sent upstream per
// request, to cap payload size and cost.
const historyTail = 10

// errorTemplate is the assistant-visible diagnostic written when an exchange
// fails. Failures never propagate out of SendMessage.
const errorTemplate = "Sorry, something went wrong: %s"

// =============================================================================
// STORE
// =============================================================================

// Store owns all conversation and session state. A mutex guards the state
// fields: the REPL mutates from its goroutine while the storage watcher may
// call LoadConversations from another. The mutex makes individual operations
// atomic; it does not serialize whole exchanges, so two concurrent
// SendMessage calls can still interleave assistant placeholders.
type Store struct {
	mu            sync.Mutex
	conversations []*model.Conversation // most-recent-first
	activeID      string
	isLoading     bool
	isStreaming   bool

	transport llm.Transport
	kv        storage.KV

	// notify fires after each state mutation; the REPL uses it to repaint.
	// It is invoked without the mutex held.
	notify func()
}

// New creates a store backed by the transport and key-value store.
func New(transport llm.Transport, kv storage.KV) *Store {
	return &Store{
		transport: transport,
		kv:        kv,
	}
}

// WithNotifier sets the post-mutation callback. Pass nil to disable. Set it
// before the store is shared across goroutines.
func (s *Store) WithNotifier(fn func()) *Store {
	s.notify = fn
	return s
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// Conversations returns the conversation list, most recent first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations
}

// ActiveID returns the active conversation id, or "" when none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveConversation returns the active conversation, or nil when none.
func (s *Store) ActiveConversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findConversation(s.activeID)
}

// IsLoading reports whether a send is in flight before its first terminal
// event.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoading
}

// IsStreaming reports whether an assistant message is actively receiving
// chunks.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStreaming
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation inserts a new empty conversation at the front of the
// list, makes it active, and persists.
func (s *Store) CreateConversation() *model.Conversation {
	s.mu.Lock()
	conv := s.createConversationLocked()
	s.mu.Unlock()
	s.notifyChanged()
	return conv
}

// createConversationLocked is CreateConversation minus locking and
// notification. Callers hold the mutex.
func (s *Store) createConversationLocked() *model.Conversation {
	conv := model.NewConversation()
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.persist()
	return conv
}

// DeleteConversation removes the conversation. If it was active, the first
// remaining conversation becomes active; if none remain, a fresh one is
// created so the active id never dangles.
func (s *Store) DeleteConversation(id string) {
	s.mu.Lock()
	idx := -1
	for i, c := range s.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)

	if s.activeID == id {
		if len(s.conversations) == 0 {
			s.createConversationLocked()
			s.mu.Unlock()
			s.notifyChanged()
			return
		}
		s.activeID = s.conversations[0].ID
	}
	s.persist()
	s.mu.Unlock()
	s.notifyChanged()
}

// SwitchConversation reassigns the active pointer. Callers pass known ids;
// the id is not validated.
func (s *Store) SwitchConversation(id string) {
	s.mu.Lock()
	s.activeID = id
	s.persist()
	s.mu.Unlock()
	s.notifyChanged()
}

// AddMessage appends the message to the conversation, deriving the title from
// the first user message, and persists. Returns nil without mutating anything
// when the conversation id is unknown.
func (s *Store) AddMessage(conversationID string, msg *model.Message) *model.Message {
	s.mu.Lock()
	conv := s.findConversation(conversationID)
	if conv == nil {
		s.mu.Unlock()
		return nil
	}
	conv.AddMessage(msg)
	s.persist()
	s.mu.Unlock()
	s.notifyChanged()
	return msg
}

// UpdateMessage replaces (not appends) the message content. A no-op when
// either id is unknown.
func (s *Store) UpdateMessage(conversationID, messageID, content string) {
	s.updateMessage(conversationID, messageID, func(msg *model.Message) {
		msg.Content = content
	})
}

// UpdateReasoningContent replaces the message's reasoning text. A no-op when
// either id is unknown.
func (s *Store) UpdateReasoningContent(conversationID, messageID, text string) {
	s.updateMessage(conversationID, messageID, func(msg *model.Message) {
		msg.ReasoningContent = text
	})
}

// updateMessage applies fn to the message under the mutex, bumps the
// conversation's UpdatedAt, and persists. A no-op when either id is unknown.
func (s *Store) updateMessage(conversationID, messageID string, fn func(*model.Message)) {
	s.mu.Lock()
	conv := s.findConversation(conversationID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	msg := conv.GetMessageByID(messageID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	fn(msg)
	conv.UpdatedAt = model.NowMillis()
	s.persist()
	s.mu.Unlock()
	s.notifyChanged()
}

// =============================================================================
// SEND ORCHESTRATION
// =============================================================================

// SendMessage appends the user message to the active conversation (creating
// one if needed), opens a streaming exchange over the last messages, and
// folds every streaming event back into the assistant placeholder. It never
// returns an error to the caller: failures become an in-conversation
// diagnostic message and the session flags are always reset.
func (s *Store) SendMessage(ctx context.Context, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	// Whatever happens below, the flags must not stay stuck.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("store: send panicked: %v", r)
		}
		s.setSessionFlags(false, false)
	}()

	conv := s.ActiveConversation()
	if conv == nil {
		conv = s.CreateConversation()
	}
	convID := conv.ID

	s.AddMessage(convID, model.NewUserMessage(content))

	s.setSessionFlags(true, true)

	assistant := s.AddMessage(convID, model.NewAssistantMessage())
	assistantID := assistant.ID

	s.mu.Lock()
	history := buildHistory(conv, assistantID)
	s.mu.Unlock()

	s.transport.SendStreamMessage(ctx, history, llm.Callbacks{
		OnReasoning: func(chunk string) {
			s.updateMessage(convID, assistantID, func(msg *model.Message) {
				msg.ReasoningContent += chunk
			})
		},
		OnContent: func(chunk string) {
			s.updateMessage(convID, assistantID, func(msg *model.Message) {
				msg.Content += chunk
			})
		},
		OnUsage: func(u sse.Usage) {
			s.mu.Lock()
			if c := s.findConversation(convID); c != nil {
				c.PromptTokens += u.PromptTokens
				c.CompletionTokens += u.CompletionTokens
				s.persist()
			}
			s.mu.Unlock()
		},
		OnComplete: func() {
			s.mu.Lock()
			if msg := s.lookupMessage(convID, assistantID); msg != nil {
				msg.IsStreaming = false
			}
			s.isLoading = false
			s.isStreaming = false
			s.persist()
			s.mu.Unlock()
			s.notifyChanged()
		},
		OnError: func(err error) {
			s.mu.Lock()
			s.isLoading = false
			s.isStreaming = false
			if msg := s.lookupMessage(convID, assistantID); msg != nil {
				msg.Content = fmt.Sprintf(errorTemplate, err.Error())
				msg.IsStreaming = false
			}
			s.persist()
			s.mu.Unlock()
			s.notifyChanged()
		},
	})
}

// setSessionFlags updates both session flags atomically and notifies.
func (s *Store) setSessionFlags(loading, streaming bool) {
	s.mu.Lock()
	s.isLoading = loading
	s.isStreaming = streaming
	s.mu.Unlock()
	s.notifyChanged()
}

// buildHistory maps the conversation's last messages to wire turns. The
// assistant placeholder just appended is filtered out before slicing, so the
// most recent historyTail real messages (the new user message included) go
// upstream; only role and content are sent.
func buildHistory(conv *model.Conversation, placeholderID string) []llm.ChatMessage {
	var turns []*model.Message
	for _, msg := range conv.Messages {
		if msg.ID == placeholderID {
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) > historyTail {
		turns = turns[len(turns)-historyTail:]
	}

	history := make([]llm.ChatMessage, 0, len(turns))
	for _, msg := range turns {
		history = append(history, llm.ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	return history
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// LoadConversations restores state from the key-value store. A missing or
// unparseable conversation list is logged and treated as no prior data. The
// active id is restored only when it still references a conversation, else
// the first conversation, else a fresh one is created. Safe to call from the
// storage watcher goroutine.
func (s *Store) LoadConversations() {
	s.mu.Lock()
	raw, ok, err := s.kv.Get(storage.ConversationsKey)
	if err != nil {
		log.Printf("store: failed to read conversations: %v", err)
	} else if ok && raw != "" {
		var convs []*model.Conversation
		if err := json.Unmarshal([]byte(raw), &convs); err != nil {
			log.Printf("store: failed to parse saved conversations, starting fresh: %v", err)
		} else {
			s.conversations = convs
		}
	}

	activeID, _, err := s.kv.Get(storage.ActiveConversationKey)
	if err != nil {
		log.Printf("store: failed to read active conversation: %v", err)
	}

	switch {
	case activeID != "" && s.findConversation(activeID) != nil:
		s.activeID = activeID
	case len(s.conversations) > 0:
		s.activeID = s.conversations[0].ID
	default:
		s.createConversationLocked()
	}
	s.mu.Unlock()
	s.notifyChanged()
}

// persist writes both keys. Failures are logged, never propagated: losing a
// save must not break message delivery. Callers hold the mutex.
func (s *Store) persist() {
	raw, err := json.Marshal(s.conversations)
	if err != nil {
		log.Printf("store: failed to encode conversations: %v", err)
		return
	}
	if err := s.kv.Set(storage.ConversationsKey, string(raw)); err != nil {
		log.Printf("store: failed to save conversations: %v", err)
	}
	if err := s.kv.Set(storage.ActiveConversationKey, s.activeID); err != nil {
		log.Printf("store: failed to save active conversation: %v", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// findConversation and lookupMessage assume the caller holds the mutex.

func (s *Store) findConversation(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) lookupMessage(conversationID, messageID string) *model.Message {
	conv := s.findConversation(conversationID)
	if conv == nil {
		return nil
	}
	return conv.GetMessageByID(messageID)
}

func (s *Store) notifyChanged() {
	if s.notify != nil {
		s.notify()
	}
}
