// Package anyllm provides an llm.Provider backed by
// github.com/mozilla-ai/any-llm-go, restricted to backends that run on the
// local machine.
//
// Usage:
//
//	p, err := anyllm.New("ollama", "llama3.2:3b")
//	p, err := anyllm.New("llamacpp", "qwen2.5", anyllm.WithBaseURL("http://127.0.0.1:8080/v1"))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/MrWong99/voxprivate/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Supported lists the accepted backend names.
var Supported = []string{"ollama", "llamacpp", "llamafile"}

// Provider implements llm.Provider by wrapping an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

type options struct {
	baseURL string
	apiKey  string
}

// Option configures a Provider.
type Option func(*options)

// WithBaseURL points the backend at a non-default server. The URL must be a
// loopback address.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithAPIKey sets a bearer token for servers started with one (llama.cpp
// --api-key).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// New creates a Provider for the named backend: "ollama", "llamacpp" or
// "llamafile". Without WithBaseURL the backend's default local address is used.
func New(providerName, model string, opts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := llm.RequireLoopback(o.baseURL); err != nil {
		return nil, fmt.Errorf("anyllm: %w", err)
	}

	var libOpts []anyllmlib.Option
	if o.baseURL != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(o.baseURL))
	}
	if o.apiKey != "" {
		libOpts = append(libOpts, anyllmlib.WithAPIKey(o.apiKey))
	}

	backend, err := createBackend(providerName, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "ollama":
		return ollama.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", providerName, strings.Join(Supported, ", "))
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	result := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// buildParams converts a CompletionRequest into any-llm-go parameters.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
