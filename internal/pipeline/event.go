package pipeline

import (
	"context"
	"time"
)

// EventType distinguishes feedback events.
type EventType string

const (
	// EventResult reports the outcome of one utterance.
	EventResult EventType = "result"

	// EventBusy reports an utterance dropped by backpressure.
	EventBusy EventType = "busy"

	// EventState reports a coordinator state change.
	EventState EventType = "state"
)

// Event is user-facing feedback. Transcript is only filled when verbose
// logging is enabled.
type Event struct {
	Type        EventType `json:"event"`
	Time        time.Time `json:"time"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Command     string    `json:"command,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	State       string    `json:"state,omitempty"`
}

// Feedback receives events from the coordinator. Publish is called from the
// pipeline goroutines and must not block for long.
type Feedback interface {
	Publish(ctx context.Context, ev Event)
}

// FeedbackFunc adapts a function to [Feedback].
type FeedbackFunc func(ctx context.Context, ev Event)

// Publish implements [Feedback].
func (f FeedbackFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }
