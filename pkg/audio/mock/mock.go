// Package mock provides a scripted [audio.Source] for tests and dry runs.
//
// A Source plays back a list of segments (silence, tones, injected errors)
// as fixed-size frames. When the script is exhausted NextFrame blocks until
// the context is cancelled, like an idle microphone.
//
// Example:
//
//	src := mock.NewSource(audio.Config{SampleRate: 16000, ChunkSize: 1024},
//	    mock.Silence(500*time.Millisecond),
//	    mock.Tone(2*time.Second, 8000),
//	    mock.Silence(time.Second),
//	)
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

// Segment is one step of a playback script.
type Segment struct {
	// Duration of audio to generate. Rounded up to whole frames.
	Duration time.Duration

	// Amplitude is the peak of a 440 Hz sine. Zero produces digital silence.
	Amplitude int16

	// Err, if non-nil, is returned once by NextFrame instead of audio.
	Err error
}

// Silence returns a segment of digital silence.
func Silence(d time.Duration) Segment { return Segment{Duration: d} }

// Tone returns a segment of a 440 Hz sine with the given peak amplitude.
func Tone(d time.Duration, amplitude int16) Segment {
	return Segment{Duration: d, Amplitude: amplitude}
}

// Fail returns a segment that makes NextFrame return err once.
func Fail(err error) Segment { return Segment{Err: err} }

// Source is a scripted implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	cfg    audio.Config
	script []Segment

	// OpenErrs is consumed one entry per Open call; nil entries succeed.
	// Once empty every Open succeeds.
	OpenErrs []error

	// Realtime paces NextFrame at the frame duration when set.
	Realtime bool

	// OpenCalls and CloseCalls count lifecycle calls.
	OpenCalls  int
	CloseCalls int

	open      bool
	segIdx    int
	segFrames int
	seq       uint64
	phase     float64
	exhausted chan struct{}
	exhOnce   sync.Once
}

// NewSource creates a Source that plays script using cfg's frame format.
func NewSource(cfg audio.Config, script ...Segment) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	return &Source{
		cfg:       cfg,
		script:    script,
		exhausted: make(chan struct{}),
	}
}

// Exhausted is closed once every scripted segment has been played.
func (s *Source) Exhausted() <-chan struct{} { return s.exhausted }

// Open marks the source open and restarts sequence numbering.
func (s *Source) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls++
	if len(s.OpenErrs) > 0 {
		err := s.OpenErrs[0]
		s.OpenErrs = s.OpenErrs[1:]
		if err != nil {
			return err
		}
	}
	s.open = true
	s.seq = 0
	return nil
}

// Close marks the source closed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.open = false
	return nil
}

// NextFrame returns the next scripted frame.
func (s *Source) NextFrame(ctx context.Context) (audio.AudioFrame, error) {
	frame, wait, err := s.next()
	if wait {
		<-ctx.Done()
		return audio.AudioFrame{}, ctx.Err()
	}
	if err != nil {
		return audio.AudioFrame{}, err
	}
	if s.Realtime {
		select {
		case <-ctx.Done():
			return audio.AudioFrame{}, ctx.Err()
		case <-time.After(frame.Duration()):
		}
	}
	return frame, nil
}

func (s *Source) next() (audio.AudioFrame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return audio.AudioFrame{}, false, audio.ErrNotOpen
	}
	frameDur := time.Duration(s.cfg.ChunkSize) * time.Second / time.Duration(s.cfg.SampleRate)

	for s.segIdx < len(s.script) {
		seg := s.script[s.segIdx]
		if seg.Err != nil {
			s.segIdx++
			s.open = false
			return audio.AudioFrame{}, false, seg.Err
		}
		total := int((seg.Duration + frameDur - 1) / frameDur)
		if s.segFrames >= total {
			s.segIdx++
			s.segFrames = 0
			continue
		}
		s.segFrames++
		frame := audio.AudioFrame{
			Data:       s.synth(seg.Amplitude),
			SampleRate: s.cfg.SampleRate,
			Seq:        s.seq,
			Timestamp:  time.Duration(s.seq) * frameDur,
		}
		s.seq++
		return frame, false, nil
	}

	s.exhOnce.Do(func() { close(s.exhausted) })
	return audio.AudioFrame{}, true, nil
}

// synth renders one chunk of a 440 Hz sine, keeping phase continuous.
func (s *Source) synth(amplitude int16) []byte {
	samples := make([]int16, s.cfg.ChunkSize)
	if amplitude == 0 {
		return audio.EncodeInt16(samples)
	}
	step := 2 * math.Pi * 440 / float64(s.cfg.SampleRate)
	for i := range samples {
		samples[i] = int16(float64(amplitude) * math.Sin(s.phase))
		s.phase += step
	}
	return audio.EncodeInt16(samples)
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
