// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the chat-completions API.
const (
	// DefaultBaseURL is the base URL for the chat-completions API.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "deepseek-reasoner"

	// DefaultTimeout is the wall-clock limit for a full streaming exchange,
	// from request start to final frame.
	DefaultTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of an error response body is read.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxErrorBodySize = 1 * 1024 * 1024
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared streaming HTTP client; no client timeout, the wall clock is
// enforced per request via context.
// SECURITY: TLS verification required for production
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false,
		},
	},
}

// Error variables for common client errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrTimeout indicates the wall-clock limit elapsed before the stream
	// finished.
	ErrTimeout = errors.New("request timed out")
)

// APIError represents a non-2xx response from the chat-completions endpoint.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d)", e.Status)
}

// ChatMessage is a single turn in the request history. Only role and content
// are sent upstream; local fields like reasoning text never leave the client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the streaming request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages"`
	Stream         bool          `json:"stream"`
	EnableThinking bool          `json:"enable_thinking"`
	StreamOptions  streamOptions `json:"stream_options"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// apiErrorResponse is the error envelope some endpoints return.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a chat-completions endpoint. Configure it once at startup;
// it is safe for concurrent use after that.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration

	// limiter throttles outbound requests so a send loop cannot hammer the
	// endpoint. Nil means unlimited.
	limiter *rate.Limiter
}

// NewClient creates a client with the given API key.
//
// If the API key is empty the client is still created but streaming requests
// fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model for streaming requests.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithTimeout sets the wall-clock limit for a streaming exchange.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithRateLimit replaces the outbound request limiter. Pass nil to disable.
func (c *Client) WithRateLimit(limiter *rate.Limiter) *Client {
	c.limiter = limiter
	return c
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// setHeaders sets the required headers for a streaming request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "thinkchat/0.1.0")
}

// handleErrorResponse converts a non-2xx response into an *APIError, using
// the error envelope when the body parses and the raw body otherwise.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &APIError{Status: statusCode, Message: apiErr.Error.Message}
	}
	return &APIError{Status: statusCode, Message: strings.TrimSpace(string(body))}
}

// readErrorBody reads a bounded amount of an error response body.
func readErrorBody(body io.Reader) []byte {
	data, err := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	if err != nil {
		return nil
	}
	return data
}
