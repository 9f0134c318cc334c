// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one complete [audio.Utterance] into a [Transcript]. The
// pipeline never streams partial audio to the model: the gate has already
// segmented speech, so a provider sees each utterance exactly once.
//
// Transcription is potentially slow and must honour context cancellation.
// When a model runtime cannot run concurrent inference, wrap it in
// [Serialized] so that calls are funnelled through one owner goroutine.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

// ErrTranscriptionFailed wraps every model-side failure (model unavailable,
// out of memory, inference error).
var ErrTranscriptionFailed = errors.New("stt: transcription failed")

// ErrClosed is returned by a provider after Close.
var ErrClosed = errors.New("stt: provider closed")

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts u into text. On failure the returned Transcript
	// still carries u's timestamps with Confidence 0 and Failed set, and the
	// error wraps ErrTranscriptionFailed or the context error.
	Transcribe(ctx context.Context, u audio.Utterance) (Transcript, error)
}

// Failed returns the zero-confidence transcript reported alongside an error.
func Failed(u audio.Utterance) Transcript {
	return Transcript{
		UtteranceID: u.ID,
		Start:       u.Start,
		End:         u.End,
		Failed:      true,
	}
}
