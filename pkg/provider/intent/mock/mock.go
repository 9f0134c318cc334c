// Package mock provides a test double for intent.Provider.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

// Result is one scripted resolution outcome.
type Result struct {
	Intent intent.Intent
	Err    error
}

// Provider is a mock implementation of intent.Provider. Results are consumed
// in order; once exhausted Default is returned. When ByText is set and
// contains the transcript text, that entry wins over the script.
type Provider struct {
	mu sync.Mutex

	Results []Result
	Default Result
	ByText  map[string]Result

	// Delay is slept (interruptibly) before each result.
	Delay time.Duration

	// Calls records the transcripts passed to Resolve.
	Calls []stt.Transcript
}

// Resolve records the call and returns the next scripted result.
func (p *Provider) Resolve(ctx context.Context, t stt.Transcript) (intent.Intent, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, t)
	res, ok := p.ByText[t.Text]
	if !ok {
		res = p.Default
		if len(p.Results) > 0 {
			res = p.Results[0]
			p.Results = p.Results[1:]
		}
	}
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return intent.Intent{}, ctx.Err()
		}
	}
	if res.Err != nil {
		return intent.Intent{}, res.Err
	}
	in := res.Intent
	if in.UtteranceID == "" {
		in.UtteranceID = t.UtteranceID
	}
	return in, nil
}

// CallCount returns the number of Resolve calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ intent.Provider = (*Provider)(nil)
