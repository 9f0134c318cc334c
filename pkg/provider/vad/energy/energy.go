// Package energy implements a vad.Engine that classifies frames by their mean
// absolute amplitude on the int16 scale.
//
// Thresholds are in raw sample units: a SpeechThreshold of 500 marks any frame
// whose mean |sample| is at least 500 as speech.
package energy

import (
	"fmt"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// DefaultThreshold is the mean-abs level used when Config.SpeechThreshold is 0.
const DefaultThreshold = 500

// Engine creates energy-threshold VAD sessions.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns an energy Engine.
func New() Engine { return Engine{} }

// NewSession validates cfg and returns a new session.
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.SpeechThreshold < 0 || cfg.SilenceThreshold < 0 {
		return nil, fmt.Errorf("energy: thresholds must not be negative")
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = cfg.SpeechThreshold
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.1f exceeds speech threshold %.1f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &session{cfg: cfg}, nil
}

type session struct {
	cfg      vad.Config
	speaking bool
	closed   bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, vad.ErrSessionClosed
	}
	if len(frame)%audio.BytesPerSample != 0 {
		return vad.VADEvent{}, fmt.Errorf("%w: %d bytes is not a whole number of samples", vad.ErrInvalidFrame, len(frame))
	}

	level := audio.MeanAbs(frame)
	ev := vad.VADEvent{Probability: level}

	switch {
	case !s.speaking && level >= s.cfg.SpeechThreshold:
		s.speaking = true
		ev.Type = vad.VADSpeechStart
	case s.speaking && level >= s.cfg.SilenceThreshold:
		ev.Type = vad.VADSpeechContinue
	case s.speaking:
		s.speaking = false
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

func (s *session) Reset() { s.speaking = false }

func (s *session) Close() error {
	s.closed = true
	return nil
}
