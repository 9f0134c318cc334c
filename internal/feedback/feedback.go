// Package feedback delivers pipeline events to the user and to local
// records.
//
// Every sink implements [pipeline.Feedback]. [Fanout] combines several sinks
// so the coordinator only ever sees one.
package feedback

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/voxprivate/internal/pipeline"
)

// Fanout returns a Feedback that publishes every event to each non-nil sink
// in order.
func Fanout(sinks ...pipeline.Feedback) pipeline.Feedback {
	var live multi
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return live
}

type multi []pipeline.Feedback

// Publish implements [pipeline.Feedback].
func (m multi) Publish(ctx context.Context, ev pipeline.Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}

// Console prints user-facing messages, one per line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Publish writes result and busy messages. State changes and events without
// a message are ignored.
func (c *Console) Publish(_ context.Context, ev pipeline.Event) {
	if !spoken(ev) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "Assistant: %s\n", ev.Message)
}

// spoken reports whether ev carries a message meant for the user.
func spoken(ev pipeline.Event) bool {
	return ev.Message != "" && (ev.Type == pipeline.EventResult || ev.Type == pipeline.EventBusy)
}

var (
	_ pipeline.Feedback = (*Console)(nil)
	_ pipeline.Feedback = multi(nil)
)
