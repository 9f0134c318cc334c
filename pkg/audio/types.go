package audio

import "time"

// BytesPerSample is the width of one PCM sample. All frames carry 16-bit
// signed little-endian mono audio.
const BytesPerSample = 2

// AudioFrame is one fixed-size chunk of captured audio. Frames are immutable
// once produced; consumers must copy Data before modifying it.
type AudioFrame struct {
	// Data is 16-bit signed little-endian mono PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Seq is the monotonic sequence number assigned by the source. It restarts
	// at zero only when the source is reopened.
	Seq uint64

	// Timestamp marks the start of this frame relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of samples in the frame.
func (f AudioFrame) Samples() int {
	return len(f.Data) / BytesPerSample
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// End returns the stream offset at which the frame ends.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}

// Utterance is a contiguous span of captured speech bounded by silence.
type Utterance struct {
	// ID uniquely identifies the utterance across the pipeline.
	ID string

	// Frames holds the speech frames in capture order.
	Frames []AudioFrame

	// SampleRate of every frame in Frames.
	SampleRate int

	// Start is the stream offset of the first speech frame.
	Start time.Duration

	// End is the stream offset at which the last speech frame ends.
	End time.Duration

	// Truncated is set when the utterance was cut by the max-duration bound.
	Truncated bool
}

// Duration returns End - Start.
func (u Utterance) Duration() time.Duration {
	return u.End - u.Start
}

// PCM concatenates all frame payloads into one buffer.
func (u Utterance) PCM() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}
