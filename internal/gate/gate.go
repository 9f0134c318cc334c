// Package gate assembles speech frames into utterances.
//
// A [Gate] consumes the frame sequence produced by an [audio.Source], asks a
// VAD session to classify every frame, and runs a small state machine:
//
//	Idle ──speech──▶ Listening ──hangover elapsed──▶ Finalizing ──emit──▶ Idle
//
// A Listening episode that reaches MaxDuration is emitted early with
// Truncated set and [ErrUtteranceTooLong] logged. Episodes whose speech is
// shorter than MinSpeech are discarded as noise.
//
// A Gate is owned by the capture goroutine and is not safe for concurrent use.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// ErrUtteranceTooLong is logged when a Listening episode hits MaxDuration.
// It is recoverable: the truncated utterance is still emitted.
var ErrUtteranceTooLong = errors.New("gate: utterance too long")

// Defaults applied by [New] to zero-valued Config fields.
const (
	DefaultHangover    = 500 * time.Millisecond
	DefaultMaxDuration = 10 * time.Second
	DefaultMinSpeech   = 100 * time.Millisecond
)

// State is the gate's position in its state machine.
type State int

const (
	Idle State = iota
	Listening
	Finalizing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config tunes utterance segmentation.
type Config struct {
	// Hangover is how much consecutive silence ends a Listening episode.
	Hangover time.Duration

	// MaxDuration bounds a single utterance.
	MaxDuration time.Duration

	// MinSpeech is the shortest utterance that is emitted.
	MinSpeech time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithIDFunc overrides the utterance ID generator (default: random UUIDs).
func WithIDFunc(fn func() string) Option {
	return func(g *Gate) { g.newID = fn }
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(g *Gate) { g.onState = fn }
}

// Gate turns a frame stream into utterances.
type Gate struct {
	cfg     Config
	vad     vad.SessionHandle
	newID   func() string
	onState func(from, to State)

	state      State
	frames     []audio.AudioFrame
	lastSpeech int // index into frames of the most recent speech frame
	silence    time.Duration
}

// New returns a Gate classifying frames with sess.
func New(sess vad.SessionHandle, cfg Config, opts ...Option) (*Gate, error) {
	if sess == nil {
		return nil, errors.New("gate: vad session must not be nil")
	}
	if cfg.Hangover < 0 || cfg.MaxDuration < 0 || cfg.MinSpeech < 0 {
		return nil, errors.New("gate: durations must not be negative")
	}
	if cfg.Hangover == 0 {
		cfg.Hangover = DefaultHangover
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.MinSpeech == 0 {
		cfg.MinSpeech = DefaultMinSpeech
	}
	if cfg.MinSpeech > cfg.MaxDuration {
		return nil, fmt.Errorf("gate: min speech %s exceeds max duration %s", cfg.MinSpeech, cfg.MaxDuration)
	}

	g := &Gate{
		cfg:   cfg,
		vad:   sess,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Push feeds one frame into the gate. It returns a completed utterance when
// the frame closes a Listening episode, or nil otherwise. VAD failures are
// returned as errors and leave the gate state unchanged.
func (g *Gate) Push(f audio.AudioFrame) (*audio.Utterance, error) {
	ev, err := g.vad.ProcessFrame(f.Data)
	if err != nil {
		return nil, fmt.Errorf("gate: classify frame %d: %w", f.Seq, err)
	}
	speech := ev.IsSpeech()

	switch g.state {
	case Idle:
		if !speech {
			return nil, nil
		}
		g.transition(Listening)
		g.frames = append(g.frames[:0], f)
		g.lastSpeech = 0
		g.silence = 0

	case Listening:
		g.frames = append(g.frames, f)
		if speech {
			g.lastSpeech = len(g.frames) - 1
			g.silence = 0
		} else {
			g.silence += f.Duration()
			if g.silence >= g.cfg.Hangover {
				return g.finalize(false), nil
			}
		}
	}

	if g.state == Listening && g.span() >= g.cfg.MaxDuration {
		slog.Warn("gate: utterance too long",
			"err", ErrUtteranceTooLong,
			"max_duration", g.cfg.MaxDuration,
		)
		return g.finalize(true), nil
	}
	return nil, nil
}

// Flush emits the partial utterance of an ongoing Listening episode, if any,
// as though the hangover had elapsed. It is used when capture stops.
func (g *Gate) Flush() *audio.Utterance {
	if g.state != Listening {
		return nil
	}
	return g.finalize(false)
}

// Reset drops any partial utterance and returns to Idle. The VAD session is
// reset as well.
func (g *Gate) Reset() {
	g.vad.Reset()
	g.frames = nil
	g.silence = 0
	if g.state != Idle {
		g.transition(Idle)
	}
}

// span is the length of the current episode up to the last speech frame.
func (g *Gate) span() time.Duration {
	if len(g.frames) == 0 {
		return 0
	}
	return g.frames[len(g.frames)-1].End() - g.frames[0].Timestamp
}

// finalize trims trailing silence, builds the utterance and returns to Idle.
// It returns nil when the speech is shorter than MinSpeech.
func (g *Gate) finalize(truncated bool) *audio.Utterance {
	g.transition(Finalizing)
	defer g.transition(Idle)

	speech := g.frames[:g.lastSpeech+1]
	frames := make([]audio.AudioFrame, len(speech))
	copy(frames, speech)
	g.frames = g.frames[:0]
	g.silence = 0

	u := &audio.Utterance{
		Frames:     frames,
		SampleRate: frames[0].SampleRate,
		Start:      frames[0].Timestamp,
		End:        frames[len(frames)-1].End(),
		Truncated:  truncated,
	}
	if u.Duration() < g.cfg.MinSpeech {
		slog.Debug("gate: utterance discarded as noise", "duration", u.Duration())
		return nil
	}
	u.ID = g.newID()
	slog.Debug("gate: utterance complete",
		"utterance_id", u.ID,
		"frames", len(frames),
		"duration", u.Duration(),
		"truncated", truncated,
	)
	return u
}

func (g *Gate) transition(to State) {
	from := g.state
	g.state = to
	if g.onState != nil {
		g.onState(from, to)
	}
}
