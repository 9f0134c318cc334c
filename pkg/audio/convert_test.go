package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

func TestEncodeDecodeInt16(t *testing.T) {
	in := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	got := audio.DecodeInt16(audio.EncodeInt16(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDecodeInt16_OddLength(t *testing.T) {
	got := audio.DecodeInt16([]byte{1, 0, 7})
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := audio.EncodeInt16([]int16{100, 200, -100, -200})
	got := audio.DecodeInt16(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	stereo := audio.EncodeInt16([]int16{math.MaxInt16, math.MaxInt16})
	got := audio.DecodeInt16(audio.StereoToMono(stereo))
	if got[0] != math.MaxInt16 {
		t.Errorf("got %d, want %d", got[0], math.MaxInt16)
	}
}

func TestResampleMono16(t *testing.T) {
	tests := []struct {
		name    string
		in      []int16
		src     int
		dst     int
		wantLen int
	}{
		{"same rate", []int16{1, 2, 3}, 16000, 16000, 3},
		{"downsample 48k to 16k", []int16{100, 200, 300, 400, 500, 600}, 48000, 16000, 2},
		{"upsample 16k to 48k", []int16{1000, 2000}, 16000, 48000, 6},
		{"zero source rate", []int16{1, 2}, 0, 16000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := audio.DecodeInt16(audio.ResampleMono16(audio.EncodeInt16(tt.in), tt.src, tt.dst))
			if len(out) != tt.wantLen {
				t.Fatalf("got %d samples, want %d", len(out), tt.wantLen)
			}
			if out[0] != tt.in[0] {
				t.Errorf("first sample = %d, want %d", out[0], tt.in[0])
			}
		})
	}
}

func TestRMSAndMeanAbs(t *testing.T) {
	pcm := audio.EncodeInt16([]int16{1000, -1000, 1000, -1000})
	if got := audio.RMS(pcm); math.Abs(got-1000) > 0.001 {
		t.Errorf("RMS = %f, want 1000", got)
	}
	if got := audio.MeanAbs(pcm); math.Abs(got-1000) > 0.001 {
		t.Errorf("MeanAbs = %f, want 1000", got)
	}
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
}
