package config_test

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxprivate/internal/config"
	"github.com/MrWong99/voxprivate/pkg/audio"
	audiomock "github.com/MrWong99/voxprivate/pkg/audio/mock"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	intentmock "github.com/MrWong99/voxprivate/pkg/provider/intent/mock"
	"github.com/MrWong99/voxprivate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxprivate/pkg/provider/llm/mock"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxprivate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
	"github.com/MrWong99/voxprivate/pkg/provider/vad/energy"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
audio:
  sample_rate: 16000
  chunk_size: 1024
  device: USB Microphone

model:
  speech_recognition: base.en
  dir: /opt/voxprivate/models
  gpu_acceleration: false

vad:
  speech_threshold: 600
  hangover: 700ms

intent:
  resolvers: [pattern, llm]
  llm:
    name: ollama
    model: llama3.2
    base_url: http://127.0.0.1:11434

commands:
  confidence_threshold: 0.7
  sandbox_dir: /tmp/voxprivate
  allow_power: true

logging:
  enabled: true
  verbose: false
  journal: /tmp/voxprivate/journal.jsonl

feedback:
  speech: true

server:
  listen_addr: 127.0.0.1:9470
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.Device != "USB Microphone" || cfg.Audio.ChunkSize != 1024 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Model.SpeechRecognition != "base.en" || cfg.Model.Dir != "/opt/voxprivate/models" {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.VAD.SpeechThreshold != 600 || cfg.VAD.SilenceThreshold != 600 || cfg.VAD.Hangover != 700*time.Millisecond {
		t.Errorf("vad = %+v", cfg.VAD)
	}
	if !slices.Equal(cfg.Intent.Resolvers, []string{"pattern", "llm"}) || cfg.Intent.LLM.Model != "llama3.2" {
		t.Errorf("intent = %+v", cfg.Intent)
	}
	if cfg.Commands.ConfidenceThreshold != 0.7 || !cfg.Commands.AllowPower {
		t.Errorf("commands = %+v", cfg.Commands)
	}
	if !cfg.Feedback.Speech || cfg.Feedback.SpeechRate != 175 {
		t.Errorf("feedback = %+v", cfg.Feedback)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9470" {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"audio.provider", cfg.Audio.Provider, "portaudio"},
		{"audio.sample_rate", cfg.Audio.SampleRate, 16000},
		{"audio.chunk_size", cfg.Audio.ChunkSize, 1024},
		{"model.provider", cfg.Model.Provider, "whisper"},
		{"model.speech_recognition", cfg.Model.SpeechRecognition, "tiny"},
		{"model.language", cfg.Model.Language, "en"},
		{"vad.provider", cfg.VAD.Provider, "energy"},
		{"vad.speech_threshold", cfg.VAD.SpeechThreshold, 500.0},
		{"vad.hangover", cfg.VAD.Hangover, 500 * time.Millisecond},
		{"vad.max_utterance", cfg.VAD.MaxUtterance, 10 * time.Second},
		{"vad.min_speech", cfg.VAD.MinSpeech, 100 * time.Millisecond},
		{"commands.confidence_threshold", cfg.Commands.ConfidenceThreshold, 0.6},
		{"commands.timeout", cfg.Commands.Timeout, 10 * time.Second},
		{"pipeline.max_retries", cfg.Pipeline.MaxRetries, 8},
		{"pipeline.backoff", cfg.Pipeline.Backoff, 500 * time.Millisecond},
		{"pipeline.max_backoff", cfg.Pipeline.MaxBackoff, 10 * time.Second},
		{"logging.enabled", cfg.Logging.Enabled, false},
		{"feedback.speech_rate", cfg.Feedback.SpeechRate, 175},
		{"server.listen_addr", cfg.Server.ListenAddr, ""},
		{"intent.llm.name", cfg.Intent.LLM.Name, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !slices.Equal(cfg.Intent.Resolvers, []string{"pattern"}) {
		t.Errorf("intent.resolvers = %v", cfg.Intent.Resolvers)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sampel_rate: 16000\n"))
	if err == nil || !strings.Contains(err.Error(), "sampel_rate") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateUnregistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	_, errAudio := r.CreateAudio(config.AudioConfig{Provider: "alsa"})
	_, errVAD := r.CreateVAD(config.VADConfig{Provider: "silero"})
	_, errSTT := r.CreateSTT(config.ModelConfig{Provider: "vosk"})
	_, errLLM := r.CreateLLM(config.ProviderEntry{Name: "openai"})
	_, errIntent := r.CreateIntent("rasa", &config.Config{}, nil)

	for kind, err := range map[string]error{
		"audio": errAudio, "vad": errVAD, "stt": errSTT, "llm": errLLM, "intent": errIntent,
	} {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: err = %v, want ErrProviderNotRegistered", kind, err)
		}
	}
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	var gotAudio config.AudioConfig
	r.RegisterAudio("mock", func(c config.AudioConfig) (audio.Source, error) {
		gotAudio = c
		return audiomock.NewSource(audio.Config{SampleRate: c.SampleRate, ChunkSize: c.ChunkSize}), nil
	})
	r.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) { return energy.New(), nil })
	r.RegisterSTT("mock", func(config.ModelConfig) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	r.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	var gotCmds []intent.Command
	r.RegisterIntent("mock", func(_ *config.Config, cmds []intent.Command) (intent.Provider, error) {
		gotCmds = cmds
		return &intentmock.Provider{}, nil
	})

	if _, err := r.CreateAudio(config.AudioConfig{Provider: "mock", SampleRate: 16000, ChunkSize: 512}); err != nil {
		t.Fatal(err)
	}
	if gotAudio.ChunkSize != 512 {
		t.Errorf("factory got %+v", gotAudio)
	}
	if _, err := r.CreateVAD(config.VADConfig{Provider: "energy"}); err != nil {
		t.Error(err)
	}
	if _, err := r.CreateSTT(config.ModelConfig{Provider: "mock"}); err != nil {
		t.Error(err)
	}
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Error(err)
	}
	cmds := []intent.Command{{Name: "time"}}
	if _, err := r.CreateIntent("mock", &config.Config{}, cmds); err != nil {
		t.Error(err)
	}
	if len(gotCmds) != 1 || gotCmds[0].Name != "time" {
		t.Errorf("intent factory got %v", gotCmds)
	}

	if got := r.Names("stt"); !slices.Equal(got, []string{"mock"}) {
		t.Errorf("Names(stt) = %v", got)
	}
	if got := r.Names("bogus"); len(got) != 0 {
		t.Errorf("Names(bogus) = %v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	boom := errors.New("model file missing")
	r.RegisterSTT("whisper", func(config.ModelConfig) (stt.Provider, error) { return nil, boom })

	if _, err := r.CreateSTT(config.ModelConfig{Provider: "whisper"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}
