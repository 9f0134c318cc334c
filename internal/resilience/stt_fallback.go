package resilience

import (
	"context"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

var _ stt.Provider = (*STTFallback)(nil)

// STTFallback implements [stt.Provider] with failover across transcribers,
// for example a large model backed by a smaller one that still fits in
// memory.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// transcriber.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Transcribe tries each transcriber in order. On total failure the returned
// transcript is the zero-confidence Failed transcript for u.
func (f *STTFallback) Transcribe(ctx context.Context, u audio.Utterance) (stt.Transcript, error) {
	t, err := ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, u)
	})
	if err != nil {
		return stt.Failed(u), err
	}
	return t, nil
}
