// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the chat-completions event stream.
//
// The endpoint returns a text/event-stream body where each event is a single
// line of the form "data: <json>", terminated by "data: [DONE]" and/or plain
// end of input. The decoder accepts raw byte chunks as they arrive off the
// wire, tolerating frames split across chunk boundaries, and yields parsed
// delta chunks.
package sse

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
)

// dataPrefix marks an SSE data frame.
const dataPrefix = "data: "

// doneToken is the sentinel payload signalling end of stream. It is discarded
// without being parsed as JSON.
const doneToken = "[DONE]"

// maxLineSize caps a single buffered line. A stream that never emits a
// newline must not grow memory without bound; an over-long line is dropped
// like a malformed frame.
const maxLineSize = 64 * 1024

// =============================================================================
// DELTA CHUNK TYPES
// =============================================================================

// Chunk represents a single decoded delta from the streaming response.
type Chunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`

	// Usage carries aggregate counters rather than a delta. Present on the
	// final metadata event when stream_options.include_usage is set.
	Usage *Usage `json:"usage"`
}

// Choice is one completion choice inside a chunk.
type Choice struct {
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// Delta is the incremental payload of a choice.
//
// ReasoningContent is a pointer so that "field present" (even when empty) is
// distinguishable from "field absent" - routing depends on presence, not on
// the text being non-empty.
type Delta struct {
	Role             string  `json:"role,omitempty"`
	Content          string  `json:"content"`
	ReasoningContent *string `json:"reasoning_content"`
}

// Usage holds aggregate token counters for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GetContent returns the content from the first choice's delta.
func (c *Chunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetReasoning returns the reasoning field of the first choice's delta and
// whether it was present at all.
func (c *Chunk) GetReasoning() (string, bool) {
	if len(c.Choices) > 0 && c.Choices[0].Delta.ReasoningContent != nil {
		return *c.Choices[0].Delta.ReasoningContent, true
	}
	return "", false
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder reassembles SSE frames from successive byte chunks.
//
// It maintains an internal buffer; on each Feed it appends the decoded text,
// splits on newline, yields every complete data frame, and retains the last
// (possibly partial) line for the next chunk. Empty lines and comment lines
// (starting with ':') are discarded, as is the [DONE] sentinel.
//
// A malformed JSON payload is logged and skipped; it never aborts the stream.
type Decoder struct {
	buf       bytes.Buffer
	malformed int

	// overflow is set after an over-long line was dropped; input is then
	// discarded until the next newline resynchronizes the frame boundary.
	overflow bool
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a raw byte chunk and returns all delta chunks completed by it,
// in arrival order.
func (d *Decoder) Feed(p []byte) []Chunk {
	if d.overflow {
		nl := bytes.IndexByte(p, '\n')
		if nl < 0 {
			// Still inside the dropped line.
			return nil
		}
		p = p[nl+1:]
		d.overflow = false
	}

	d.buf.Write(p)

	data := d.buf.Bytes()
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		// No complete line yet; keep buffering.
		d.capBuffer()
		return nil
	}

	complete := string(data[:idx])
	rest := append([]byte(nil), data[idx+1:]...)
	d.buf.Reset()
	d.buf.Write(rest)

	var chunks []Chunk
	for _, line := range strings.Split(complete, "\n") {
		if c, ok := d.decodeLine(line); ok {
			chunks = append(chunks, c)
		}
	}
	d.capBuffer()
	return chunks
}

// capBuffer drops the buffered partial line once it exceeds maxLineSize and
// marks the decoder to skip input until the next frame boundary.
func (d *Decoder) capBuffer() {
	if d.buf.Len() <= maxLineSize {
		return
	}
	log.Printf("sse: dropping over-long line (%d bytes buffered)", d.buf.Len())
	d.buf.Reset()
	d.malformed++
	d.overflow = true
}

// Close signals end of input. A trailing partial line cannot be a complete
// frame and is discarded.
func (d *Decoder) Close() {
	if d.buf.Len() > 0 {
		log.Printf("sse: discarding %d bytes of trailing partial frame", d.buf.Len())
		d.buf.Reset()
	}
}

// MalformedFrames returns how many data frames failed to parse as JSON.
func (d *Decoder) MalformedFrames() int {
	return d.malformed
}

// decodeLine parses a single line into a delta chunk. The second return is
// false for non-data lines, the [DONE] sentinel, and malformed payloads.
func (d *Decoder) decodeLine(line string) (Chunk, bool) {
	line = strings.TrimSpace(line)

	// Empty lines separate events; lines starting with ':' are comments.
	if line == "" || strings.HasPrefix(line, ":") {
		return Chunk{}, false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		// Other SSE fields (event:, id:, retry:) are ignored.
		return Chunk{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneToken {
		return Chunk{}, false
	}

	var chunk Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// Never fail the whole stream over one bad frame.
		d.malformed++
		log.Printf("sse: skipping malformed frame: %v", err)
		return Chunk{}, false
	}
	return chunk, true
}
