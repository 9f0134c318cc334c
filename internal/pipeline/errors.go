package pipeline

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/gate"
	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

var (
	// ErrBusy is reported when an utterance is dropped because one is
	// already in flight and another is pending.
	ErrBusy = errors.New("pipeline: busy")

	// ErrAlreadyRunning is returned by Start when the coordinator is not
	// stopped.
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrReconnectFailed wraps the last device error once every reconnection
	// attempt has failed. It is fatal.
	ErrReconnectFailed = errors.New("pipeline: audio device reconnection failed")
)

// Error kind labels used in metrics, logs and feedback events.
const (
	KindOK                     = "ok"
	KindDeviceUnavailable      = "device_unavailable"
	KindStreamInterrupted      = "stream_interrupted"
	KindUtteranceTooLong       = "utterance_too_long"
	KindTranscriptionFailed    = "transcription_failed"
	KindNoMatch                = "no_match"
	KindLowConfidence          = "low_confidence"
	KindUnknownCommand         = "unknown_command"
	KindInvalidSlot            = "invalid_slot"
	KindHandlerExecutionFailed = "handler_execution_failed"
	KindBusy                   = "busy"
	KindCancelled              = "cancelled"
	KindInternal               = "internal"
)

// Kind maps err to a stable label. Dispatch errors are checked before
// context errors because a handler timeout wraps both.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, dispatch.ErrUnknownCommand):
		return KindUnknownCommand
	case errors.Is(err, dispatch.ErrLowConfidence):
		return KindLowConfidence
	case errors.Is(err, dispatch.ErrInvalidSlot):
		return KindInvalidSlot
	case errors.Is(err, dispatch.ErrHandlerExecutionFailed):
		return KindHandlerExecutionFailed
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, intent.ErrNoMatch):
		return KindNoMatch
	case errors.Is(err, stt.ErrTranscriptionFailed):
		return KindTranscriptionFailed
	case errors.Is(err, gate.ErrUtteranceTooLong):
		return KindUtteranceTooLong
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, audio.ErrStreamInterrupted):
		return KindStreamInterrupted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}
