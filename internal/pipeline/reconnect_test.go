package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/gate"
	"github.com/MrWong99/voxprivate/pkg/audio"
	audiomock "github.com/MrWong99/voxprivate/pkg/audio/mock"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

func TestReconnector_Reopen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		openErrs []error
		wantErr  error
		attempts []int
	}{
		{
			name:     "first attempt",
			attempts: []int{1},
		},
		{
			name:     "after failures",
			openErrs: []error{audio.ErrDeviceUnavailable, audio.ErrDeviceUnavailable},
			attempts: []int{1, 2, 3},
		},
		{
			name:     "exhausted",
			openErrs: []error{audio.ErrDeviceUnavailable, audio.ErrDeviceUnavailable, audio.ErrDeviceUnavailable},
			wantErr:  ErrReconnectFailed,
			attempts: []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := audiomock.NewSource(audio.Config{})
			src.OpenErrs = tt.openErrs

			var attempts []int
			r := NewReconnector(src, ReconnectConfig{
				MaxRetries: 3,
				Backoff:    time.Millisecond,
				MaxBackoff: 2 * time.Millisecond,
				OnAttempt:  func(n int) { attempts = append(attempts, n) },
			})

			err := r.Reopen(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reopen = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, audio.ErrDeviceUnavailable) {
				t.Errorf("Reopen error %v lost the device cause", err)
			}
			if fmt.Sprint(attempts) != fmt.Sprint(tt.attempts) {
				t.Errorf("attempts = %v, want %v", attempts, tt.attempts)
			}
			if src.CloseCalls != 1 {
				t.Errorf("CloseCalls = %d, want 1", src.CloseCalls)
			}
		})
	}
}

func TestReconnector_Defaults(t *testing.T) {
	t.Parallel()
	r := NewReconnector(audiomock.NewSource(audio.Config{}), ReconnectConfig{})
	if r.maxRetries != 8 || r.backoff != 500*time.Millisecond || r.maxBackoff != 10*time.Second {
		t.Errorf("defaults = %d/%v/%v", r.maxRetries, r.backoff, r.maxBackoff)
	}
}

func TestReconnector_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	src := audiomock.NewSource(audio.Config{})
	src.OpenErrs = []error{audio.ErrDeviceUnavailable}
	r := NewReconnector(src, ReconnectConfig{MaxRetries: 3, Backoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Reopen(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Reopen = %v, want DeadlineExceeded", err)
	}
	if src.OpenCalls != 1 {
		t.Errorf("OpenCalls = %d, want 1", src.OpenCalls)
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, KindOK},
		{fmt.Errorf("%w: %w", dispatch.ErrHandlerExecutionFailed, context.DeadlineExceeded), KindHandlerExecutionFailed},
		{dispatch.ErrUnknownCommand, KindUnknownCommand},
		{dispatch.ErrLowConfidence, KindLowConfidence},
		{fmt.Errorf("slot name: %w", dispatch.ErrInvalidSlot), KindInvalidSlot},
		{ErrBusy, KindBusy},
		{intent.ErrNoMatch, KindNoMatch},
		{fmt.Errorf("%w: boom", stt.ErrTranscriptionFailed), KindTranscriptionFailed},
		{gate.ErrUtteranceTooLong, KindUtteranceTooLong},
		{fmt.Errorf("%w: %w", ErrReconnectFailed, audio.ErrDeviceUnavailable), KindDeviceUnavailable},
		{audio.ErrStreamInterrupted, KindStreamInterrupted},
		{context.Canceled, KindCancelled},
		{errors.New("weird"), KindInternal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateStopped:  "stopped",
		StateRunning:  "running",
		StateStopping: "stopping",
		State(9):      "State(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
