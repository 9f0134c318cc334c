package stt

import (
	"context"
	"sync"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

var _ Provider = (*Serialized)(nil)

// Serialized funnels every Transcribe call through a single owner goroutine
// so that the wrapped provider never runs two inferences at once.
//
// A caller whose context ends while queued or while its request is running
// returns immediately with the context error; the owner goroutine finishes
// the running inference and discards the result.
type Serialized struct {
	inner Provider
	reqs  chan *request
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

type request struct {
	ctx  context.Context
	u    audio.Utterance
	resp chan response
}

type response struct {
	t   Transcript
	err error
}

// NewSerialized starts the owner goroutine for inner. Call Close to stop it.
func NewSerialized(inner Provider) *Serialized {
	s := &Serialized{
		inner: inner,
		reqs:  make(chan *request),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Transcribe queues u for the owner goroutine and waits for its result.
func (s *Serialized) Transcribe(ctx context.Context, u audio.Utterance) (Transcript, error) {
	req := &request{ctx: ctx, u: u, resp: make(chan response, 1)}

	select {
	case s.reqs <- req:
	case <-ctx.Done():
		return Failed(u), ctx.Err()
	case <-s.done:
		return Failed(u), ErrClosed
	}

	select {
	case r := <-req.resp:
		return r.t, r.err
	case <-ctx.Done():
		return Failed(u), ctx.Err()
	}
}

// Close stops the owner goroutine after the running request, if any.
// It is safe to call more than once.
func (s *Serialized) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *Serialized) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case req := <-s.reqs:
			if err := req.ctx.Err(); err != nil {
				req.resp <- response{t: Failed(req.u), err: err}
				continue
			}
			t, err := s.inner.Transcribe(req.ctx, req.u)
			req.resp <- response{t: t, err: err}
		}
	}
}
