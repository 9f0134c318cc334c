package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider transcribes utterances with a whisper.cpp model loaded once at
// construction. Each call creates its own whisper context from the shared
// model; wrap the provider in stt.Serialized to bound memory use.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the recognition language code (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithThreads(n uint) Option {
	return func(p *Provider) { p.threads = n }
}

// New loads the model at modelPath. The caller must call Close.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper inference over u. Confidence is the mean
// probability of the non-special tokens. Cancelling ctx aborts inference
// before the encoder starts and discards any result.
func (p *Provider) Transcribe(ctx context.Context, u audio.Utterance) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Failed(u), err
	}

	pcm := u.PCM()
	if u.SampleRate != modelSampleRate {
		pcm = audio.ResampleMono16(pcm, u.SampleRate, modelSampleRate)
	}

	text, conf, err := p.infer(ctx, pcmToFloat32(pcm))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stt.Failed(u), ctxErr
	}
	if err != nil {
		return stt.Failed(u), fmt.Errorf("%w: %w", stt.ErrTranscriptionFailed, err)
	}

	return stt.Transcript{
		UtteranceID: u.ID,
		Text:        text,
		Confidence:  stt.ClampConfidence(conf),
		Start:       u.Start,
		End:         u.End,
	}, nil
}

func (p *Provider) infer(ctx context.Context, samples []float32) (string, float64, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, keepGoing, nil, nil); err != nil {
		return "", 0, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		probs []float32
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			if !isSpecialToken(tok.Text) {
				probs = append(probs, tok.P)
			}
		}
	}
	return strings.Join(parts, " "), meanProbability(probs), nil
}
