// Package mock provides a test double for stt.Provider.
//
// Provider returns scripted results in order and records every call. A
// non-zero Delay makes each call block (honouring ctx) to simulate slow
// inference; Block lets a test hold calls until it closes the channel.
//
//	p := &mock.Provider{Results: []mock.Result{{Text: "what time is it", Confidence: 0.9}}}
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

// Result is one scripted transcription outcome.
type Result struct {
	Text       string
	Confidence float64

	// Err, if non-nil, makes the call fail with an error wrapping
	// stt.ErrTranscriptionFailed.
	Err error
}

// TranscribeCall records one invocation of Provider.Transcribe.
type TranscribeCall struct {
	UtteranceID string
	Start       time.Duration
	End         time.Duration
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is consumed one entry per call. Once exhausted, Default is used.
	Results []Result
	Default Result

	// Delay is slept (interruptibly) before each result is returned.
	Delay time.Duration

	// Block, if non-nil, is waited on (interruptibly) before each result.
	Block <-chan struct{}

	// Started, if non-nil, receives the utterance ID as each call begins.
	Started chan<- string

	// Calls records every call in order.
	Calls []TranscribeCall

	active    int
	maxActive int
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, u audio.Utterance) (stt.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{UtteranceID: u.ID, Start: u.Start, End: u.End})
	res := p.Default
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	}
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	delay, block, started := p.Delay, p.Block, p.Started
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if started != nil {
		started <- u.ID
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Failed(u), ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Failed(u), ctx.Err()
		}
	}

	if res.Err != nil {
		return stt.Failed(u), fmt.Errorf("%w: %w", stt.ErrTranscriptionFailed, res.Err)
	}
	return stt.Transcript{
		UtteranceID: u.ID,
		Text:        res.Text,
		Confidence:  res.Confidence,
		Start:       u.Start,
		End:         u.End,
	}, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// MaxConcurrent returns the highest number of overlapping calls observed.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

var _ stt.Provider = (*Provider)(nil)
