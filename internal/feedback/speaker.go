package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/MrWong99/voxprivate/internal/pipeline"
)

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 175

// ErrNoSpeechEngine is returned by [NewSpeaker] when neither espeak-ng,
// espeak nor say is installed.
var ErrNoSpeechEngine = errors.New("feedback: no speech engine installed")

// Runner executes a program to completion. [commands.ExecRunner] implements
// it.
type Runner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) (int, error)
}

// engines lists the supported text-to-speech programs in preference order
// together with their rate flag.
var engines = []struct{ name, rateFlag string }{
	{"espeak-ng", "-s"},
	{"espeak", "-s"},
	{"say", "-r"},
}

// SpeakerOption configures a [Speaker].
type SpeakerOption func(*Speaker)

// WithRate overrides [DefaultRate].
func WithRate(wpm int) SpeakerOption {
	return func(s *Speaker) {
		if wpm > 0 {
			s.rate = wpm
		}
	}
}

// WithQueueSize sets how many messages may wait while one is being spoken.
// Messages beyond that are dropped. Default 4.
func WithQueueSize(n int) SpeakerOption {
	return func(s *Speaker) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Speaker reads result messages aloud through a local speech program. Speech
// runs on its own goroutine so Publish never waits for audio playback.
type Speaker struct {
	runner    Runner
	program   string
	rateFlag  string
	rate      int
	queueSize int

	queue   chan string
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewSpeaker picks the first installed engine and starts the speech
// goroutine. Call [Speaker.Close] to stop it.
func NewSpeaker(r Runner, opts ...SpeakerOption) (*Speaker, error) {
	s := &Speaker{runner: r, rate: DefaultRate, queueSize: 4}
	for _, o := range opts {
		o(s)
	}
	for _, e := range engines {
		if _, err := r.LookPath(e.name); err == nil {
			s.program, s.rateFlag = e.name, e.rateFlag
			break
		}
	}
	if s.program == "" {
		return nil, ErrNoSpeechEngine
	}

	s.queue = make(chan string, s.queueSize)
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop()
	slog.Info("feedback: speech enabled", "engine", s.program, "rate", s.rate)
	return s, nil
}

// Program returns the selected speech program.
func (s *Speaker) Program() string { return s.program }

// Publish queues the event's message for speech.
func (s *Speaker) Publish(_ context.Context, ev pipeline.Event) {
	if !spoken(ev) {
		return
	}
	select {
	case <-s.stop:
	case s.queue <- ev.Message:
	default:
		slog.Debug("feedback: speech queue full, dropping message")
	}
}

// Close stops speaking after the current message and waits for the speech
// goroutine to exit. Queued messages are discarded.
func (s *Speaker) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.stopped
	return nil
}

func (s *Speaker) loop() {
	defer close(s.stopped)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.queue:
			select {
			case <-s.stop:
				return
			default:
			}
			s.say(ctx, msg)
		}
	}
}

func (s *Speaker) say(ctx context.Context, msg string) {
	code, err := s.runner.Run(ctx, s.program, s.rateFlag, strconv.Itoa(s.rate), msg)
	if err != nil && ctx.Err() == nil {
		slog.Warn("feedback: speech failed", "engine", s.program, "exit_code", code, "err", err)
	}
}

var _ pipeline.Feedback = (*Speaker)(nil)
