// Package llm defines the Provider interface for locally hosted Large Language
// Model backends (Ollama, llama.cpp server, llamafile).
//
// Providers are only ever pointed at loopback endpoints; use [RequireLoopback]
// to validate a configured base URL before constructing one.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotLocal is returned for endpoints that are not on a loopback address.
var ErrNotLocal = errors.New("llm: endpoint is not a loopback address")

// Message is a single chat message.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role    string
	Content string
}

// CompletionRequest carries everything the model needs to produce a response.
type CompletionRequest struct {
	// SystemPrompt is prepended as a "system" message when non-empty.
	SystemPrompt string
	Messages     []Message

	// Temperature in [0, 2]. Zero keeps the backend default.
	Temperature float64

	// MaxTokens caps generated tokens. Zero keeps the backend default.
	MaxTokens int
}

// Usage holds token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any local LLM backend.
//
// Implementations must be safe for concurrent use and return promptly when
// ctx is cancelled.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// RequireLoopback returns ErrNotLocal unless rawURL points at localhost or a
// loopback IP. An empty URL is accepted; backends default to local servers.
func RequireLoopback(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("llm: parse endpoint %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: %q has no host", ErrNotLocal, rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrNotLocal, rawURL)
}
