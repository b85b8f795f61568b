// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router classifies decoded stream deltas into typed events.
//
// Each delta is interpreted as exactly one of: usage metadata, reasoning
// text, answer text, or nothing (ignored silently, e.g. an empty choice
// list). A per-session phase latch enforces the "reasoning before answer"
// rule: once answer text has been seen, reasoning text is no longer
// dispatched for that session.
package router

import (
	"github.com/morganforge/thinkchat/internal/sse"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the per-session streaming phase.
type Phase int

const (
	// PhaseThinking is the initial phase; reasoning deltas are dispatched.
	PhaseThinking Phase = iota

	// PhaseAnswering is entered on the first answer delta. The transition is
	// one-way: reasoning text arriving afterwards is dropped. Upstream,
	// thinking tokens conclude before content tokens in practice, so
	// interleaved reasoning after the cutover is treated as noise.
	PhaseAnswering
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseThinking:
		return "thinking"
	case PhaseAnswering:
		return "answering"
	default:
		return "unknown"
	}
}

// =============================================================================
// ROUTER
// =============================================================================

// Handlers receives classified events. Nil handlers are skipped.
type Handlers struct {
	OnReasoning func(text string)
	OnContent   func(text string)
	OnUsage     func(usage sse.Usage)
}

// Router applies the phase rule to a single session's delta stream.
// It is not safe for concurrent use; a session routes from one goroutine.
type Router struct {
	phase    Phase
	handlers Handlers
}

// New creates a router in PhaseThinking.
func New(h Handlers) *Router {
	return &Router{phase: PhaseThinking, handlers: h}
}

// Phase returns the current phase.
func (r *Router) Phase() Phase {
	return r.phase
}

// Route classifies one decoded chunk and invokes the matching handler
// synchronously. Events are dispatched strictly in arrival order; no
// batching or coalescing is performed.
func (r *Router) Route(chunk sse.Chunk) {
	// Aggregate counters, never double-counted as content.
	if chunk.Usage != nil {
		if r.handlers.OnUsage != nil {
			r.handlers.OnUsage(*chunk.Usage)
		}
	}

	if len(chunk.Choices) == 0 {
		return
	}

	if reasoning, ok := chunk.GetReasoning(); ok && r.phase == PhaseThinking {
		if r.handlers.OnReasoning != nil {
			r.handlers.OnReasoning(reasoning)
		}
	}

	if content := chunk.GetContent(); content != "" {
		r.phase = PhaseAnswering
		if r.handlers.OnContent != nil {
			r.handlers.OnContent(content)
		}
	}
}
