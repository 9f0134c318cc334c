// Package portaudio captures microphone audio through the PortAudio C library.
//
// The PortAudio shared library and headers must be installed at build time
// (libportaudio2 / portaudio19-dev on Debian-based systems).
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Source reads fixed-size mono frames from an input device.
type Source struct {
	cfg audio.Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	seq     uint64
	started time.Time
}

// New returns a Source for cfg. The device is not opened until Open.
func New(cfg audio.Config) (*Source, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("portaudio: sample rate must be positive")
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("portaudio: chunk size must be positive")
	}
	if cfg.CaptureRate <= 0 {
		cfg.CaptureRate = cfg.SampleRate
	}
	return &Source{cfg: cfg}, nil
}

// Open initialises PortAudio and starts a blocking input stream.
func (s *Source) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", audio.ErrDeviceUnavailable, err)
	}

	framesPerBuffer := s.cfg.ChunkSize * s.cfg.CaptureRate / s.cfg.SampleRate
	buf := make([]int16, framesPerBuffer)

	stream, err := s.openStream(buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", audio.ErrDeviceUnavailable, err)
	}

	s.stream = stream
	s.buf = buf
	s.seq = 0
	s.started = time.Now()
	slog.Debug("portaudio: stream opened",
		"device", s.cfg.Device,
		"capture_rate", s.cfg.CaptureRate,
		"sample_rate", s.cfg.SampleRate,
		"chunk_size", s.cfg.ChunkSize,
	)
	return nil
}

func (s *Source) openStream(buf []int16) (*portaudio.Stream, error) {
	if s.cfg.Device == "" {
		return portaudio.OpenDefaultStream(1, 0, float64(s.cfg.CaptureRate), len(buf), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels < 1 || !strings.EqualFold(d.Name, s.cfg.Device) {
			continue
		}
		params := portaudio.LowLatencyParameters(d, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(s.cfg.CaptureRate)
		params.FramesPerBuffer = len(buf)
		return portaudio.OpenStream(params, buf)
	}
	return nil, fmt.Errorf("input device %q not found", s.cfg.Device)
}

// NextFrame blocks until one chunk has been read from the device.
func (s *Source) NextFrame(ctx context.Context) (audio.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return audio.AudioFrame{}, audio.ErrNotOpen
	}
	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			slog.Debug("portaudio: input overflowed", "seq", s.seq)
		} else {
			return audio.AudioFrame{}, fmt.Errorf("%w: %v", audio.ErrStreamInterrupted, err)
		}
	}

	pcm := audio.EncodeInt16(s.buf)
	if s.cfg.CaptureRate != s.cfg.SampleRate {
		pcm = fitChunk(audio.ResampleMono16(pcm, s.cfg.CaptureRate, s.cfg.SampleRate), s.cfg.ChunkSize)
	}

	frameDur := time.Duration(s.cfg.ChunkSize) * time.Second / time.Duration(s.cfg.SampleRate)
	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: s.cfg.SampleRate,
		Seq:        s.seq,
		Timestamp:  time.Duration(s.seq) * frameDur,
	}
	s.seq++
	return frame, nil
}

// Close stops the stream and terminates PortAudio.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}

// fitChunk pads or trims pcm to exactly samples samples; resampling can be off
// by one sample due to integer rounding.
func fitChunk(pcm []byte, samples int) []byte {
	want := samples * audio.BytesPerSample
	if len(pcm) == want {
		return pcm
	}
	out := make([]byte, want)
	copy(out, pcm)
	return out
}
