// Package pipeline runs the voice-command pipeline end to end.
//
// A [Coordinator] owns two goroutines. The capture goroutine reads frames
// from the audio source and feeds the voice activity gate; it never waits on
// inference. Completed utterances are handed to the processing goroutine,
// which transcribes, resolves and dispatches them one at a time in capture
// order.
//
// The hand-off holds at most one pending utterance besides the one being
// processed. Anything beyond that is dropped and reported as [ErrBusy].
//
// Failures after capture are local to their utterance. Device failures
// trigger a reopen with backoff; only exhausting the retries stops the
// coordinator, and [Coordinator.Wait] then returns the error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/gate"
	"github.com/MrWong99/voxprivate/internal/observe"
	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// Feedback messages produced by the coordinator itself.
const (
	msgBusy                = "One moment, I'm still working on your last request."
	msgTranscriptionFailed = "Sorry, I couldn't make that out."
	msgNoMatch             = "Sorry, I didn't understand that. Say 'help' to hear what I can do."
	msgResolveFailed       = "Sorry, something went wrong understanding that."
)

// State is the coordinator lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

// String returns a human-readable name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dispatcher executes resolved intents. [*dispatch.Dispatcher] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, in intent.Intent) dispatch.Result
}

// Config wires the pipeline stages together.
type Config struct {
	Source    audio.Source
	VAD       vad.Engine
	VADConfig vad.Config
	Gate      gate.Config
	GateOpts  []gate.Option

	Transcriber stt.Provider
	Resolver    intent.Provider
	Dispatcher  Dispatcher

	// Feedback receives result, busy and state events. May be nil.
	Feedback Feedback

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Reconnect ReconnectConfig

	// OnStopped is called after every run ends with the fatal error, or nil
	// for a requested stop. May be nil.
	OnStopped func(err error)

	// Verbose allows transcript text in debug logs and feedback events.
	Verbose bool
}

// Stats are cumulative counters since construction.
type Stats struct {
	Utterances int64 `json:"utterances"`
	Processed  int64 `json:"processed"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	BusyDrops  int64 `json:"busy_drops"`
	Interrupts int64 `json:"interrupts"`
	Reconnects int64 `json:"reconnects"`
}

type counters struct {
	utterances, processed, succeeded, failed atomic.Int64
	busyDrops, interrupts, reconnects        atomic.Int64
}

// job is an utterance waiting in the hand-off.
type job struct {
	u        audio.Utterance
	captured time.Time
	epoch    uint64
}

// Coordinator owns the pipeline lifecycle. All methods are safe for
// concurrent use.
type Coordinator struct {
	cfg         Config
	metrics     *observe.Metrics
	reconnector *Reconnector

	mu          sync.Mutex
	state       State
	stopCapture context.CancelFunc
	cancelWork  context.CancelFunc
	queue       chan job
	inflight    context.CancelFunc
	done        chan struct{}
	err         error

	// epoch is bumped by Interrupt; jobs from an older epoch are discarded.
	epoch      atomic.Uint64
	sourceOpen atomic.Bool
	verbose    atomic.Bool
	stats      counters
}

// New validates cfg and returns a stopped [Coordinator].
func New(cfg Config) (*Coordinator, error) {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if cfg.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if cfg.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if cfg.Resolver == nil {
		errs = append(errs, errors.New("resolver is required"))
	}
	if cfg.Dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	c := &Coordinator{cfg: cfg, metrics: cfg.Metrics}
	c.verbose.Store(cfg.Verbose)
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	rc := cfg.Reconnect
	userHook := rc.OnAttempt
	rc.OnAttempt = func(attempt int) {
		c.stats.reconnects.Add(1)
		c.metrics.Reconnects.Add(context.Background(), 1)
		if userHook != nil {
			userHook(attempt)
		}
	}
	c.reconnector = NewReconnector(cfg.Source, rc)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Utterances: c.stats.utterances.Load(),
		Processed:  c.stats.processed.Load(),
		Succeeded:  c.stats.succeeded.Load(),
		Failed:     c.stats.failed.Load(),
		BusyDrops:  c.stats.busyDrops.Load(),
		Interrupts: c.stats.interrupts.Load(),
		Reconnects: c.stats.reconnects.Load(),
	}
}

// Start opens the audio source and starts the pipeline. ctx bounds the
// lifetime of the pipeline; cancelling it stops without draining. Start
// returns [ErrAlreadyRunning] unless the coordinator is stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	sess, err := c.cfg.VAD.NewSession(c.cfg.VADConfig)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: start vad session: %w", err)
	}
	g, err := gate.New(sess, c.cfg.Gate, c.cfg.GateOpts...)
	if err != nil {
		_ = sess.Close()
		c.mu.Unlock()
		return fmt.Errorf("pipeline: start gate: %w", err)
	}
	if err := c.cfg.Source.Open(ctx); err != nil {
		_ = sess.Close()
		c.mu.Unlock()
		return fmt.Errorf("pipeline: start: %w", err)
	}

	captureCtx, stopCapture := context.WithCancel(ctx)
	workCtx, cancelWork := context.WithCancel(ctx)
	queue := make(chan job, 1)
	done := make(chan struct{})

	c.state = StateRunning
	c.sourceOpen.Store(true)
	c.stopCapture = stopCapture
	c.cancelWork = cancelWork
	c.queue = queue
	c.done = done
	c.err = nil
	c.mu.Unlock()

	c.metrics.Running.Add(ctx, 1)
	c.publishState(ctx, StateRunning)
	slog.Info("pipeline: started")

	var eg errgroup.Group
	eg.Go(func() error {
		defer close(queue)
		return c.capture(captureCtx, g, queue)
	})
	eg.Go(func() error {
		for j := range queue {
			c.process(workCtx, j)
		}
		return nil
	})

	go func() {
		runErr := eg.Wait()
		c.sourceOpen.Store(false)
		stopCapture()
		cancelWork()
		if err := errors.Join(c.cfg.Source.Close(), sess.Close()); err != nil {
			slog.Warn("pipeline: releasing resources", "err", err)
		}

		c.mu.Lock()
		c.state = StateStopped
		c.err = runErr
		c.queue = nil
		c.inflight = nil
		c.mu.Unlock()

		c.metrics.Running.Add(context.Background(), -1)
		if runErr != nil {
			slog.Error("pipeline: stopped with fatal error", "err", runErr)
		} else {
			slog.Info("pipeline: stopped")
		}
		c.publishState(context.Background(), StateStopped)
		close(done)
		if c.cfg.OnStopped != nil {
			c.cfg.OnStopped(runErr)
		}
	}()
	return nil
}

// Stop stops capture, lets the in-flight and pending utterances finish and
// returns once the coordinator is stopped. If ctx expires first, remaining
// work is cancelled and ctx.Err() is returned after shutdown completes.
// Stopping a stopped coordinator is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	switch c.state {
	case StateStopped:
		c.mu.Unlock()
		return nil
	case StateStopping:
		c.mu.Unlock()
		return c.awaitDone(ctx, done)
	}
	c.state = StateStopping
	stopCapture := c.stopCapture
	c.mu.Unlock()

	slog.Info("pipeline: stopping")
	c.publishState(ctx, StateStopping)
	stopCapture()
	return c.awaitDone(ctx, done)
}

func (c *Coordinator) awaitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	c.mu.Lock()
	cancelWork := c.cancelWork
	c.mu.Unlock()
	slog.Warn("pipeline: drain deadline reached, cancelling remaining work")
	cancelWork()
	<-done
	return ctx.Err()
}

// SetVerbose switches transcript text in debug logs and feedback on or off.
func (c *Coordinator) SetVerbose(v bool) { c.verbose.Store(v) }

// Ready returns nil when the coordinator is running and its audio source is
// open. It backs the readiness probe.
func (c *Coordinator) Ready() error {
	if s := c.State(); s != StateRunning {
		return fmt.Errorf("pipeline: %s", s)
	}
	if !c.sourceOpen.Load() {
		return errors.New("pipeline: audio source reconnecting")
	}
	return nil
}

// Wait blocks until the coordinator stops and returns the fatal error, if
// any. It returns nil immediately if the coordinator was never started.
func (c *Coordinator) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Interrupt cancels in-flight transcription and resolution and discards
// the pending utterance. A handler that has already started runs to
// completion but its result is not published.
func (c *Coordinator) Interrupt() {
	c.epoch.Add(1)
	c.stats.interrupts.Add(1)

	c.mu.Lock()
	cancel := c.inflight
	queue := c.queue
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queue != nil {
		select {
		case j, ok := <-queue:
			if ok {
				slog.Debug("pipeline: pending utterance discarded by interrupt", "utterance_id", j.u.ID)
			}
		default:
		}
	}
	slog.Info("pipeline: interrupted")
}

// capture reads frames until ctx is cancelled or the device is lost for
// good. The partial utterance at shutdown is flushed into the hand-off.
func (c *Coordinator) capture(ctx context.Context, g *gate.Gate, queue chan<- job) error {
	for {
		frame, err := c.cfg.Source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if u := g.Flush(); u != nil {
					c.submit(*u, queue)
				}
				return nil
			}
			kind := Kind(err)
			slog.Warn("pipeline: audio stream failed", "kind", kind, "err", err)
			c.metrics.RecordError(ctx, observe.StageCapture, kind)
			c.sourceOpen.Store(false)
			g.Reset()
			if err := c.reconnector.Reopen(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			c.sourceOpen.Store(true)
			continue
		}

		u, err := g.Push(frame)
		if err != nil {
			slog.Warn("pipeline: voice activity detection failed", "err", err)
			continue
		}
		if u != nil {
			c.submit(*u, queue)
		}
	}
}

// submit places u in the hand-off or drops it with a Busy signal.
func (c *Coordinator) submit(u audio.Utterance, queue chan<- job) {
	ctx := context.Background()
	c.stats.utterances.Add(1)
	c.metrics.RecordUtterance(ctx, u.Truncated)
	if u.Truncated {
		c.metrics.RecordError(ctx, observe.StageCapture, KindUtteranceTooLong)
	}

	select {
	case queue <- job{u: u, captured: time.Now(), epoch: c.epoch.Load()}:
		slog.Debug("pipeline: utterance queued", "utterance_id", u.ID, "duration", u.Duration())
	default:
		c.stats.busyDrops.Add(1)
		c.metrics.BusyDrops.Add(ctx, 1)
		slog.Info("pipeline: busy, dropping utterance", "utterance_id", u.ID)
		c.publish(ctx, Event{
			Type:        EventBusy,
			UtteranceID: u.ID,
			Message:     msgBusy,
			Kind:        KindBusy,
		})
	}
}

func (c *Coordinator) interrupted(j job) bool { return c.epoch.Load() != j.epoch }

func (c *Coordinator) setInflight(cancel context.CancelFunc) {
	c.mu.Lock()
	c.inflight = cancel
	c.mu.Unlock()
}

// process runs one utterance through transcription, resolution and
// dispatch.
func (c *Coordinator) process(ctx context.Context, j job) {
	u := j.u
	ctx, span := observe.StartSpan(ctx, "pipeline.utterance",
		trace.WithAttributes(
			attribute.String("utterance.id", u.ID),
			attribute.Bool("utterance.truncated", u.Truncated),
		))
	defer span.End()

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setInflight(cancel)
	defer c.setInflight(nil)

	if c.interrupted(j) {
		slog.Debug("pipeline: skipping utterance from before interrupt", "utterance_id", u.ID)
		return
	}

	tr, err := c.transcribe(stageCtx, u)
	if c.interrupted(j) {
		slog.Debug("pipeline: transcription discarded after interrupt", "utterance_id", u.ID)
		return
	}
	if err != nil {
		c.fail(ctx, span, u.ID, observe.StageTranscribe, err, msgTranscriptionFailed)
		return
	}
	if strings.TrimSpace(tr.Text) == "" {
		slog.Debug("pipeline: empty transcript", "utterance_id", u.ID)
		return
	}
	c.logTranscript(tr)

	in, err := c.resolve(stageCtx, tr)
	if c.interrupted(j) {
		slog.Debug("pipeline: resolution discarded after interrupt", "utterance_id", u.ID)
		return
	}
	if err != nil {
		msg := msgResolveFailed
		if errors.Is(err, intent.ErrNoMatch) {
			msg = msgNoMatch
		}
		c.fail(ctx, span, u.ID, observe.StageResolve, err, msg, tr.Text)
		return
	}

	// From here on Interrupt must not cancel the handler.
	c.setInflight(nil)
	res := c.dispatch(ctx, in)
	c.stats.processed.Add(1)
	c.metrics.CaptureToResult.Record(ctx, time.Since(j.captured).Seconds())

	kind := Kind(res.Err)
	c.metrics.RecordCommand(ctx, in.Command, kind)
	if res.Success {
		c.stats.succeeded.Add(1)
	} else {
		c.stats.failed.Add(1)
		c.metrics.RecordError(ctx, observe.StageDispatch, kind)
		span.SetStatus(codes.Error, kind)
	}

	if c.interrupted(j) {
		slog.Info("pipeline: result suppressed after interrupt", "utterance_id", u.ID, "command", in.Command)
	} else {
		ev := Event{
			Type:        EventResult,
			UtteranceID: u.ID,
			Command:     in.Command,
			Success:     res.Success,
			Message:     res.Message,
			ExitCode:    res.ExitCode,
		}
		if !res.Success {
			ev.Kind = kind
		}
		if c.verbose.Load() {
			ev.Transcript = tr.Text
		}
		c.publish(ctx, ev)
	}

	if res.Success && res.Stop {
		slog.Info("pipeline: stop requested by voice command")
		go func() {
			if err := c.Stop(context.Background()); err != nil {
				slog.Warn("pipeline: stop after voice command", "err", err)
			}
		}()
	}
}

func (c *Coordinator) transcribe(ctx context.Context, u audio.Utterance) (stt.Transcript, error) {
	ctx, span := observe.StartStage(ctx, observe.StageTranscribe)
	defer span.End()
	start := time.Now()
	tr, err := c.cfg.Transcriber.Transcribe(ctx, u)
	c.metrics.RecordStage(ctx, observe.StageTranscribe, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, Kind(err))
		return tr, err
	}
	span.SetAttributes(attribute.Float64("transcript.confidence", tr.Confidence))
	return tr, nil
}

func (c *Coordinator) resolve(ctx context.Context, tr stt.Transcript) (intent.Intent, error) {
	ctx, span := observe.StartStage(ctx, observe.StageResolve)
	defer span.End()
	start := time.Now()
	in, err := c.cfg.Resolver.Resolve(ctx, tr)
	c.metrics.RecordStage(ctx, observe.StageResolve, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, Kind(err))
		return in, err
	}
	if in.UtteranceID == "" {
		in.UtteranceID = tr.UtteranceID
	}
	span.SetAttributes(
		attribute.String("intent.command", in.Command),
		attribute.Float64("intent.confidence", in.Confidence),
	)
	return in, nil
}

func (c *Coordinator) dispatch(ctx context.Context, in intent.Intent) dispatch.Result {
	ctx, span := observe.StartStage(ctx, observe.StageDispatch,
		attribute.String("intent.command", in.Command))
	defer span.End()
	res := c.cfg.Dispatcher.Dispatch(ctx, in)
	c.metrics.RecordStage(ctx, observe.StageDispatch, res.Duration)
	if !res.Success {
		span.SetStatus(codes.Error, Kind(res.Err))
	}
	return res
}

// fail records a per-utterance failure and publishes its feedback. A
// context error means the pipeline is shutting down and is only logged.
func (c *Coordinator) fail(ctx context.Context, span trace.Span, utteranceID, stage string, err error, msg string, transcript ...string) {
	kind := Kind(err)
	span.SetStatus(codes.Error, kind)
	if kind == KindCancelled {
		slog.Debug("pipeline: utterance cancelled", "utterance_id", utteranceID, "stage", stage)
		return
	}
	c.stats.failed.Add(1)
	c.metrics.RecordError(ctx, stage, kind)
	observe.Logger(ctx).Info("pipeline: utterance failed",
		"utterance_id", utteranceID,
		"stage", stage,
		"kind", kind,
		"err", err)

	ev := Event{Type: EventResult, UtteranceID: utteranceID, Message: msg, Kind: kind}
	if c.verbose.Load() && len(transcript) > 0 {
		ev.Transcript = transcript[0]
	}
	c.publish(ctx, ev)
}

func (c *Coordinator) logTranscript(tr stt.Transcript) {
	if c.verbose.Load() {
		slog.Debug("pipeline: transcribed",
			"utterance_id", tr.UtteranceID,
			"text", tr.Text,
			"confidence", tr.Confidence)
		return
	}
	slog.Debug("pipeline: transcribed", "utterance_id", tr.UtteranceID, "confidence", tr.Confidence)
}

func (c *Coordinator) publishState(ctx context.Context, s State) {
	c.publish(ctx, Event{Type: EventState, State: s.String(), Success: true})
}

func (c *Coordinator) publish(ctx context.Context, ev Event) {
	if c.cfg.Feedback == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.cfg.Feedback.Publish(ctx, ev)
}
