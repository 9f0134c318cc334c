// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxprivate/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by every Complete call unless Err is set.
	Response llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Requests records every request in order.
	Requests []llm.CompletionRequest
}

// Complete records the request and returns Response or Err.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	resp := p.Response
	return &resp, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

var _ llm.Provider = (*Provider)(nil)
