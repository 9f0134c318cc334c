package portaudio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  audio.Config
	}{
		{"zero sample rate", audio.Config{ChunkSize: 1024}},
		{"zero chunk size", audio.Config{SampleRate: 16000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNew_DefaultsCaptureRate(t *testing.T) {
	s, err := New(audio.Config{SampleRate: 16000, ChunkSize: 1024})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.cfg.CaptureRate != 16000 {
		t.Errorf("CaptureRate = %d, want 16000", s.cfg.CaptureRate)
	}
}

func TestNextFrame_NotOpen(t *testing.T) {
	s, _ := New(audio.Config{SampleRate: 16000, ChunkSize: 1024})
	if _, err := s.NextFrame(context.Background()); !errors.Is(err, audio.ErrNotOpen) {
		t.Errorf("err = %v, want ErrNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on unopened source: %v", err)
	}
}

func TestFitChunk(t *testing.T) {
	if got := fitChunk(make([]byte, 10), 4); len(got) != 8 {
		t.Errorf("trim: len = %d, want 8", len(got))
	}
	if got := fitChunk(make([]byte, 6), 4); len(got) != 8 {
		t.Errorf("pad: len = %d, want 8", len(got))
	}
}

func TestSource_CapturesFromDevice(t *testing.T) {
	if os.Getenv("VOXPRIVATE_AUDIO_DEVICE_TESTS") == "" {
		t.Skip("VOXPRIVATE_AUDIO_DEVICE_TESTS not set; skipping microphone test")
	}
	s, err := New(audio.Config{SampleRate: 16000, ChunkSize: 1024})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	f, err := s.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if f.Samples() != 1024 {
		t.Errorf("samples = %d, want 1024", f.Samples())
	}
}
