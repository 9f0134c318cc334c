package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

func TestAudioFrame_Duration(t *testing.T) {
	f := audio.AudioFrame{
		Data:       make([]byte, 1024*audio.BytesPerSample),
		SampleRate: 16000,
		Timestamp:  time.Second,
	}
	if got, want := f.Samples(), 1024; got != want {
		t.Errorf("Samples() = %d, want %d", got, want)
	}
	if got, want := f.Duration(), 64*time.Millisecond; got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
	if got, want := f.End(), time.Second+64*time.Millisecond; got != want {
		t.Errorf("End() = %v, want %v", got, want)
	}
}

func TestAudioFrame_ZeroRate(t *testing.T) {
	f := audio.AudioFrame{Data: make([]byte, 8)}
	if f.Duration() != 0 {
		t.Errorf("Duration() = %v, want 0", f.Duration())
	}
}

func TestUtterance_PCM(t *testing.T) {
	u := audio.Utterance{
		Frames: []audio.AudioFrame{
			{Data: []byte{1, 2}},
			{Data: []byte{3, 4, 5, 6}},
		},
		Start: 100 * time.Millisecond,
		End:   300 * time.Millisecond,
	}
	pcm := u.PCM()
	if len(pcm) != 6 || pcm[0] != 1 || pcm[5] != 6 {
		t.Errorf("PCM() = %v, want [1 2 3 4 5 6]", pcm)
	}
	if u.Duration() != 200*time.Millisecond {
		t.Errorf("Duration() = %v, want 200ms", u.Duration())
	}
}
