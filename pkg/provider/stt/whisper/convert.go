package whisper

import (
	"encoding/binary"
	"strings"
)

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to [-1.0, 1.0]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// isSpecialToken reports whether a token is a whisper control token such as
// [_BEG_] or <|endoftext|>, which carry no recognition confidence.
func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}

// meanProbability averages token probabilities; zero tokens yields 0.
func meanProbability(probs []float32) float64 {
	if len(probs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	return sum / float64(len(probs))
}
