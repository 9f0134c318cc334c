package stt

import "time"

// Transcript is the speech-to-text result for one utterance.
type Transcript struct {
	// UtteranceID is the ID of the source utterance.
	UtteranceID string

	// Text is the recognised speech. Empty when nothing intelligible was said.
	Text string

	// Confidence is the overall score in [0, 1]. Always set; 0 when Failed.
	Confidence float64

	// Failed marks a transcript produced for a failed transcription.
	Failed bool

	// Start and End are the source utterance's stream offsets.
	Start time.Duration
	End   time.Duration
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0 || c != c:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
