package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxprivate/internal/config"
	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/audio/portaudio"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	intentllm "github.com/MrWong99/voxprivate/pkg/provider/intent/llm"
	"github.com/MrWong99/voxprivate/pkg/provider/intent/pattern"
	"github.com/MrWong99/voxprivate/pkg/provider/llm"
	"github.com/MrWong99/voxprivate/pkg/provider/llm/anyllm"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
	"github.com/MrWong99/voxprivate/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
	"github.com/MrWong99/voxprivate/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(c config.AudioConfig) (audio.Source, error) {
		return portaudio.New(audio.Config{
			SampleRate:  c.SampleRate,
			ChunkSize:   c.ChunkSize,
			CaptureRate: c.CaptureRate,
			Device:      c.Device,
		})
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(c config.ModelConfig) (stt.Provider, error) {
		path, err := whisper.ResolveModel(c.SpeechRecognition, c.Dir)
		if err != nil {
			return nil, err
		}
		opts := []whisper.Option{whisper.WithLanguage(c.Language)}
		if c.Threads > 0 {
			opts = append(opts, whisper.WithThreads(c.Threads))
		}
		slog.Debug("loading speech model", "path", path)
		return whisper.New(path, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// All backends are local servers; BaseURL defaults to the backend's
	// usual localhost address.
	for _, name := range anyllm.Supported {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllm.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
			}
			if entry.APIKey != "" {
				opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Intent ────────────────────────────────────────────────────────────────

	reg.RegisterIntent("pattern", func(cfg *config.Config, cmds []intent.Command) (intent.Provider, error) {
		var opts []pattern.Option
		if cfg.Intent.DisableFuzzy {
			opts = append(opts, pattern.WithoutFuzzy())
		}
		return pattern.New(cmds, opts...)
	})

	reg.RegisterIntent("llm", func(cfg *config.Config, cmds []intent.Command) (intent.Provider, error) {
		if cfg.Intent.LLM.Name == "" {
			return nil, errors.New("intent.llm.name is not set")
		}
		p, err := reg.CreateLLM(cfg.Intent.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm %q: %w", cfg.Intent.LLM.Name, err)
		}
		return intentllm.New(p, cmds)
	})

	for _, kind := range []string{"audio", "vad", "stt", "llm", "intent"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}
