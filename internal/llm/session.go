// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/morganforge/thinkchat/internal/router"
	"github.com/morganforge/thinkchat/internal/sse"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the lifecycle state of a single streaming exchange.
type State int

const (
	// StateIdle is the state before the request is sent.
	StateIdle State = iota

	// StateSending covers request construction through response headers.
	StateSending

	// StateStreaming covers the body read loop.
	StateStreaming

	// StateCompleted is terminal: the stream ended normally.
	StateCompleted

	// StateErrored is terminal: the exchange failed.
	StateErrored

	// StateTimedOut is terminal: the wall clock elapsed mid-exchange.
	StateTimedOut
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Callbacks receives streaming events. OnReasoning, OnContent, and OnUsage
// fire per frame, synchronously, in arrival order. Exactly one of OnComplete
// or OnError fires per exchange, never both, never twice. Nil callbacks are
// skipped.
type Callbacks struct {
	OnReasoning func(text string)
	OnContent   func(text string)
	OnUsage     func(usage sse.Usage)
	OnComplete  func()
	OnError     func(err error)
}

// Transport sends one message history upstream and streams the reply through
// callbacks. It exists so the store can take a fake in tests; *Client is the
// production implementation.
type Transport interface {
	SendStreamMessage(ctx context.Context, history []ChatMessage, cb Callbacks) error
}

// =============================================================================
// STREAM SESSION
// =============================================================================

// StreamSession drives a single streaming exchange through its states. A
// session is single-use and single-goroutine; create a fresh one per request.
type StreamSession struct {
	id     string
	client *Client
	cb     Callbacks
	state  State
	done   bool
}

// NewStreamSession creates an idle session bound to the client.
func NewStreamSession(client *Client, cb Callbacks) *StreamSession {
	return &StreamSession{
		id:     uuid.NewString(),
		client: client,
		cb:     cb,
		state:  StateIdle,
	}
}

// ID returns the session id.
func (s *StreamSession) ID() string {
	return s.id
}

// State returns the current state.
func (s *StreamSession) State() State {
	return s.state
}

// SendStreamMessage runs a fresh session for the history. It implements
// Transport.
func (c *Client) SendStreamMessage(ctx context.Context, history []ChatMessage, cb Callbacks) error {
	return NewStreamSession(c, cb).Run(ctx, history)
}

// Run executes the exchange: send the request, stream the body, fire the
// terminal callback. The returned error mirrors what OnError received (nil
// after OnComplete).
func (s *StreamSession) Run(ctx context.Context, history []ChatMessage) error {
	if s.done {
		return errors.New("session already finished")
	}
	if !s.client.IsConfigured() {
		return s.fail(StateErrored, ErrNotConfigured)
	}

	// The wall clock covers the whole exchange, headers and body both.
	ctx, cancel := context.WithTimeout(ctx, s.client.timeout)
	defer cancel()

	if s.client.limiter != nil {
		if err := s.client.limiter.Wait(ctx); err != nil {
			return s.fail(s.terminalFor(ctx, err), s.mapErr(ctx, err))
		}
	}

	s.state = StateSending

	resp, err := s.send(ctx, history)
	if err != nil {
		return s.fail(s.terminalFor(ctx, err), s.mapErr(ctx, err))
	}
	if resp.Body == nil {
		return s.fail(StateErrored, &APIError{Status: resp.StatusCode, Message: "response has no body"})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := handleErrorResponse(resp.StatusCode, readErrorBody(resp.Body))
		return s.fail(StateErrored, apiErr)
	}

	s.state = StateStreaming
	if err := s.stream(ctx, resp.Body); err != nil {
		return s.fail(s.terminalFor(ctx, err), s.mapErr(ctx, err))
	}

	s.state = StateCompleted
	s.done = true
	log.Printf("llm: session %s completed", s.id)
	if s.cb.OnComplete != nil {
		s.cb.OnComplete()
	}
	return nil
}

// send builds and issues the streaming request.
func (s *StreamSession) send(ctx context.Context, history []ChatMessage) (*http.Response, error) {
	reqBody := chatRequest{
		Model:          s.client.model,
		Messages:       history,
		Stream:         true,
		EnableThinking: true,
		StreamOptions:  streamOptions{IncludeUsage: true},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.client.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.client.setHeaders(req)

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// stream feeds the body through the decoder and routes every delta. EOF is
// the normal exit; [DONE] arrives as a discarded frame just before it.
func (s *StreamSession) stream(ctx context.Context, body io.Reader) error {
	decoder := sse.NewDecoder()
	rtr := router.New(router.Handlers{
		OnReasoning: s.cb.OnReasoning,
		OnContent:   s.cb.OnContent,
		OnUsage:     s.cb.OnUsage,
	})

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, chunk := range decoder.Feed(buf[:n]) {
				rtr.Route(chunk)
			}
		}
		if err == io.EOF {
			decoder.Close()
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}
	}
}

// fail moves the session to a terminal error state and fires OnError exactly
// once.
func (s *StreamSession) fail(state State, err error) error {
	if s.done {
		return err
	}
	s.state = state
	s.done = true
	log.Printf("llm: session %s %s: %v", s.id, state, err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	return err
}

// mapErr surfaces wall-clock expiry as ErrTimeout; other errors pass through.
func (s *StreamSession) mapErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// terminalFor picks the terminal state matching the failure cause.
func (s *StreamSession) terminalFor(ctx context.Context, err error) State {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return StateTimedOut
	}
	return StateErrored
}
