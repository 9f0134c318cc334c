// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (an energy threshold, or a
// model such as Silero) and surfaces it as a stateful, per-stream session. Each
// session keeps its own smoothing state so that a reconnecting audio source can
// start from a clean slate via Reset.
//
// ProcessFrame is synchronous and returns immediately with a detection result;
// it runs on the capture goroutine and must never block on I/O.
package vad

import "errors"

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// ErrInvalidFrame is returned when a frame is not whole 16-bit samples.
var ErrInvalidFrame = errors.New("vad: invalid frame")

// Config holds the parameters for a VAD session. Thresholds are expressed in
// the engine's native scale; see each Engine's documentation.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// SpeechThreshold is the level at or above which a frame is classified as
	// speech.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame that follows speech is
	// classified as silence. Zero means "same as SpeechThreshold". Must be
	// ≤ SpeechThreshold; the gap between the two provides hysteresis.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for a single audio stream.
//
// A SessionHandle is not safe for concurrent use; the capture goroutine owns it.
type SessionHandle interface {
	// ProcessFrame classifies one frame of 16-bit little-endian mono PCM.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a new session. Returns an error if cfg is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
