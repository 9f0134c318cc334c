// Package dispatch is the boundary between recognised speech and side effects.
//
// A [Dispatcher] accepts an [intent.Intent] and either rejects it or runs the
// registered [Handler]. Checks run in a fixed order and stop at the first
// failure:
//
//  1. the command must be in the [Registry] ([ErrUnknownCommand]);
//  2. the confidence must lie in [0, 1] and reach the threshold
//     ([ErrLowConfidence]); NaN never passes;
//  3. slots must satisfy the declared schema ([ErrInvalidSlot]).
//
// Only then is the handler invoked, under a per-command timeout. Handler
// errors and panics are converted into an unsuccessful [Result] wrapping
// [ErrHandlerExecutionFailed]; Dispatch itself never fails.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
)

// Sentinel errors carried in [Result.Err].
var (
	ErrUnknownCommand         = errors.New("dispatch: unknown command")
	ErrLowConfidence          = errors.New("dispatch: confidence below threshold")
	ErrInvalidSlot            = errors.New("dispatch: invalid slot")
	ErrHandlerExecutionFailed = errors.New("dispatch: handler execution failed")
)

const (
	// DefaultThreshold is the minimum intent confidence that may execute.
	DefaultThreshold = 0.6

	// DefaultTimeout bounds a single handler invocation.
	DefaultTimeout = 10 * time.Second
)

// Feedback messages for rejected intents.
const (
	msgUnknown       = "Sorry, I didn't understand that. Say 'help' to hear what I can do."
	msgLowConfidence = "Sorry, I'm not sure what you said. Please try again."
	msgInvalidSlot   = "Sorry, I can't do that with those details."
)

// Result is the immutable outcome of one dispatch.
type Result struct {
	Command     string
	UtteranceID string
	Success     bool
	Message     string

	// ExitCode is set when the handler ran an external process to completion.
	ExitCode *int

	// Err is nil on success and otherwise wraps one of the package sentinels.
	Err error

	// Stop is true when a successful command asked the assistant to exit.
	Stop bool

	Duration time.Duration
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithThreshold sets the confidence threshold.
func WithThreshold(t float64) Option {
	return func(d *Dispatcher) { d.threshold = t }
}

// WithTimeout sets the default per-command timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// Dispatcher validates intents against a [Registry] and executes them. It is
// safe for concurrent use.
type Dispatcher struct {
	reg     *Registry
	timeout time.Duration

	mu        sync.RWMutex
	threshold float64
}

// New creates a [Dispatcher] over reg.
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		threshold: DefaultThreshold,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Threshold returns the current confidence threshold.
func (d *Dispatcher) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold changes the confidence threshold for subsequent dispatches.
func (d *Dispatcher) SetThreshold(t float64) {
	d.mu.Lock()
	d.threshold = t
	d.mu.Unlock()
}

// Registry returns the allow-list this dispatcher validates against.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Dispatch validates in and, if it passes, runs its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent) Result {
	start := time.Now()
	res := d.dispatch(ctx, in)
	res.Command = in.Command
	res.UtteranceID = in.UtteranceID
	res.Duration = time.Since(start)

	if res.Err != nil {
		slog.Info("dispatch: command rejected",
			"command", in.Command,
			"utterance_id", in.UtteranceID,
			"err", res.Err)
	} else {
		slog.Info("dispatch: command executed",
			"command", in.Command,
			"utterance_id", in.UtteranceID,
			"duration", res.Duration)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, in intent.Intent) Result {
	e, ok := d.reg.lookup(in.Command)
	if !ok {
		return Result{
			Message: msgUnknown,
			Err:     fmt.Errorf("%w: %q", ErrUnknownCommand, in.Command),
		}
	}

	if threshold := d.Threshold(); !confident(in.Confidence, threshold) {
		return Result{
			Message: msgLowConfidence,
			Err:     fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, in.Confidence, threshold),
		}
	}

	args, err := e.validate(in.Slots)
	if err != nil {
		return Result{Message: msgInvalidSlot, Err: err}
	}

	timeout := e.cmd.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := invoke(hctx, e.cmd.Handler, args)
	if err != nil {
		return Result{
			Message:  fmt.Sprintf("Sorry, I encountered an error: %v", err),
			ExitCode: reply.ExitCode,
			Err:      fmt.Errorf("%w: %s: %w", ErrHandlerExecutionFailed, in.Command, err),
		}
	}
	return Result{
		Success:  true,
		Message:  reply.Message,
		ExitCode: reply.ExitCode,
		Stop:     reply.Stop,
	}
}

// confident is written so that NaN fails every comparison and is rejected.
func confident(c, threshold float64) bool {
	return c >= threshold && c >= 0 && c <= 1
}

// invoke runs h and converts a panic into an error.
func invoke(ctx context.Context, h Handler, args Args) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: handler panicked", "panic", r)
			reply, err = Reply{}, fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, args)
}
