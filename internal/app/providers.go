package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/voxprivate/internal/resilience"
	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// Version is reported in telemetry and over MCP. Overridden at build time
// with -ldflags "-X github.com/MrWong99/voxprivate/internal/app.Version=...".
var Version = "dev"

// Providers holds one interface value per pipeline stage.
type Providers struct {
	Source   audio.Source
	VAD      vad.Engine
	STT      stt.Provider
	Resolver intent.Provider
}

// initProviders instantiates every stage from the registry. The resolvers
// are built over catalog so they only ever name registered commands.
func (a *App) initProviders(catalog []intent.Command) error {
	ps := &Providers{}

	src, err := a.reg.CreateAudio(a.cfg.Audio)
	if err != nil {
		return fmt.Errorf("create audio source %q: %w", a.cfg.Audio.Provider, err)
	}
	ps.Source = src
	slog.Info("provider created", "kind", "audio", "name", a.cfg.Audio.Provider)

	eng, err := a.reg.CreateVAD(a.cfg.VAD)
	if err != nil {
		return fmt.Errorf("create vad engine %q: %w", a.cfg.VAD.Provider, err)
	}
	ps.VAD = eng
	slog.Info("provider created", "kind", "vad", "name", a.cfg.VAD.Provider)

	if ps.STT, err = a.buildTranscriber(); err != nil {
		return err
	}
	if ps.Resolver, err = a.buildResolver(catalog); err != nil {
		return err
	}

	a.providers = ps
	return nil
}

// buildTranscriber loads the configured model and, if set, the fallback
// model. Each model gets its own single-owner inference queue.
func (a *App) buildTranscriber() (stt.Provider, error) {
	primary, err := a.loadModel(a.cfg.Model.SpeechRecognition)
	if err != nil {
		return nil, err
	}
	if a.cfg.Model.Fallback == "" {
		return primary, nil
	}

	secondary, err := a.loadModel(a.cfg.Model.Fallback)
	if err != nil {
		return nil, err
	}
	fb := resilience.NewSTTFallback(primary, a.cfg.Model.SpeechRecognition, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(a.cfg.Model.Fallback, secondary)
	return fb, nil
}

func (a *App) loadModel(id string) (stt.Provider, error) {
	mc := a.cfg.Model
	mc.SpeechRecognition = id
	p, err := a.reg.CreateSTT(mc)
	if err != nil {
		return nil, fmt.Errorf("create transcriber %q (model %q): %w", mc.Provider, id, err)
	}
	// Closers run last to first: the queue stops before the model is freed.
	a.addCloser(p)
	s := stt.NewSerialized(p)
	a.closers = append(a.closers, s.Close)
	slog.Info("provider created", "kind", "stt", "name", mc.Provider, "model", id,
		"gpu_acceleration", mc.GPUAcceleration)
	return s, nil
}

// buildResolver chains the configured resolvers in order. A resolver that
// answers "no match" hands over to the next without counting as a failure
// of its circuit breaker.
func (a *App) buildResolver(catalog []intent.Command) (intent.Provider, error) {
	names := a.cfg.Intent.Resolvers
	if len(names) == 0 {
		return nil, errors.New("no intent resolvers configured")
	}

	var chain *resilience.IntentFallback
	for _, name := range names {
		p, err := a.reg.CreateIntent(name, a.cfg, catalog)
		if err != nil {
			return nil, fmt.Errorf("create intent resolver %q: %w", name, err)
		}
		a.addCloser(p)
		slog.Info("provider created", "kind", "intent", "name", name)
		if chain == nil {
			chain = resilience.NewIntentFallback(p, name, resilience.FallbackConfig{
				CircuitBreaker: resilience.CircuitBreakerConfig{IsFailure: resolverFailure},
			})
			continue
		}
		chain.AddFallback(name, p)
	}
	return chain, nil
}

func resolverFailure(err error) bool {
	return !resilience.IsContextError(err) && !errors.Is(err, intent.ErrNoMatch)
}

// addCloser registers v for Shutdown if it holds resources.
func (a *App) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}
