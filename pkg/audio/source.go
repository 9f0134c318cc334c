// Package audio defines the frame and utterance types that flow through the
// voice pipeline and the Source interface implemented by capture backends.
//
// A Source owns one input device. NextFrame blocks until a full chunk of
// samples has been captured, so callers should read from a dedicated
// goroutine. Sources are reopened by the pipeline after a device failure.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")

	// ErrStreamInterrupted is returned when an open stream fails mid-read,
	// typically because the device was unplugged.
	ErrStreamInterrupted = errors.New("audio: stream interrupted")

	// ErrNotOpen is returned by NextFrame when Open has not been called or the
	// source has been closed.
	ErrNotOpen = errors.New("audio: source not open")
)

// Config describes the frame format a Source must produce.
type Config struct {
	// SampleRate is the pipeline sample rate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per frame.
	ChunkSize int

	// CaptureRate is the rate requested from the device. When it differs from
	// SampleRate the source resamples. Zero means SampleRate.
	CaptureRate int

	// Device selects an input device by name. Empty selects the system default.
	Device string
}

// Source produces a lazy, potentially infinite sequence of fixed-size frames.
//
// Open and Close may be called repeatedly to recover from device failures.
// NextFrame must not be called concurrently.
type Source interface {
	// Open acquires the input device. Returns an error wrapping
	// [ErrDeviceUnavailable] when the device cannot be opened.
	Open(ctx context.Context) error

	// NextFrame blocks until one frame is buffered or ctx is done. Device
	// failures are reported as errors wrapping [ErrStreamInterrupted].
	NextFrame(ctx context.Context) (AudioFrame, error)

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}
