// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"testing"

	"github.com/morganforge/thinkchat/internal/sse"
)

// recorder collects routed events in arrival order.
type recorder struct {
	events []string
	usage  []sse.Usage
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnReasoning: func(text string) { r.events = append(r.events, "reasoning:"+text) },
		OnContent:   func(text string) { r.events = append(r.events, "content:"+text) },
		OnUsage:     func(u sse.Usage) { r.usage = append(r.usage, u) },
	}
}

func strptr(s string) *string { return &s }

func reasoningChunk(text string) sse.Chunk {
	return sse.Chunk{Choices: []sse.Choice{{Delta: sse.Delta{ReasoningContent: strptr(text)}}}}
}

func contentChunk(text string) sse.Chunk {
	return sse.Chunk{Choices: []sse.Choice{{Delta: sse.Delta{Content: text}}}}
}

func TestReasoningThenContent(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(reasoningChunk("think"))
	r.Route(contentChunk("answer"))

	want := []string{"reasoning:think", "content:answer"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}
}

// Once answer text has been routed, reasoning text is dropped for the rest of
// the session. This mirrors the upstream protocol, where thinking tokens
// conclude before content tokens; interleaved reasoning after the cutover is
// intentionally not preserved.
func TestReasoningAfterContentDropped(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(reasoningChunk("before"))
	r.Route(contentChunk("answer"))
	r.Route(reasoningChunk("late"))
	r.Route(contentChunk(" more"))
	r.Route(reasoningChunk("later still"))

	want := []string{"reasoning:before", "content:answer", "content: more"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if r.Phase() != PhaseAnswering {
		t.Errorf("phase = %v, want answering", r.Phase())
	}
}

func TestLatchIsOneWay(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(contentChunk("a"))
	if r.Phase() != PhaseAnswering {
		t.Fatal("content must latch the answering phase")
	}

	// Nothing reverts the latch, not even empty deltas or usage events.
	r.Route(sse.Chunk{Choices: []sse.Choice{{}}})
	r.Route(sse.Chunk{Usage: &sse.Usage{TotalTokens: 1}})
	if r.Phase() != PhaseAnswering {
		t.Error("phase reverted after latching")
	}
}

func TestEmptyChoicesIgnored(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(sse.Chunk{})
	r.Route(sse.Chunk{Choices: []sse.Choice{}})

	if len(rec.events) != 0 {
		t.Errorf("empty chunks produced events: %v", rec.events)
	}
	if r.Phase() != PhaseThinking {
		t.Error("empty chunks must not change phase")
	}
}

func TestEmptyContentDoesNotLatch(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(contentChunk(""))
	if r.Phase() != PhaseThinking {
		t.Error("empty content must not latch the answering phase")
	}
	r.Route(reasoningChunk("still thinking"))
	if len(rec.events) != 1 || rec.events[0] != "reasoning:still thinking" {
		t.Errorf("events = %v", rec.events)
	}
}

func TestUsageRoutedOnce(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(sse.Chunk{Usage: &sse.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12}})

	if len(rec.usage) != 1 {
		t.Fatalf("usage events = %d, want 1", len(rec.usage))
	}
	if rec.usage[0].TotalTokens != 12 {
		t.Errorf("usage = %+v", rec.usage[0])
	}
	if len(rec.events) != 0 {
		t.Errorf("usage chunk double-counted as content: %v", rec.events)
	}
}

func TestDeltaWithBothFieldsRoutesReasoningFirst(t *testing.T) {
	rec := &recorder{}
	r := New(rec.handlers())

	r.Route(sse.Chunk{Choices: []sse.Choice{{Delta: sse.Delta{
		Content:          "answer",
		ReasoningContent: strptr("tail-think"),
	}}}})

	want := []string{"reasoning:tail-think", "content:answer"}
	if len(rec.events) != 2 || rec.events[0] != want[0] || rec.events[1] != want[1] {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestNilHandlersTolerated(t *testing.T) {
	r := New(Handlers{})
	r.Route(reasoningChunk("x"))
	r.Route(contentChunk("y"))
	r.Route(sse.Chunk{Usage: &sse.Usage{}})
	// No panic is the assertion.
}
