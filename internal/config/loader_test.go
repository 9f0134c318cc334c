package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxprivate/internal/config"
)

func fakeEnv(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Model.SpeechRecognition = "tiny"
	cfg.Logging.Verbose = true

	err := config.ApplyEnv(cfg, fakeEnv(map[string]string{
		config.EnvModelPath:  "/srv/models/ggml-base.en.bin",
		config.EnvModelDir:   "/srv/models",
		config.EnvLogEnabled: "true",
		config.EnvLogVerbose: "0",
		config.EnvListenAddr: "127.0.0.1:9999",
		config.EnvLLMBaseURL: "http://localhost:8080",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Model.SpeechRecognition != "/srv/models/ggml-base.en.bin" || cfg.Model.Dir != "/srv/models" {
		t.Errorf("model = %+v", cfg.Model)
	}
	if !cfg.Logging.Enabled || cfg.Logging.Verbose {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Intent.LLM.BaseURL != "http://localhost:8080" {
		t.Errorf("llm.base_url = %q", cfg.Intent.LLM.BaseURL)
	}
}

func TestApplyEnv_EmptyValuesKeepFile(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Model.SpeechRecognition = "small"
	cfg.Logging.Enabled = true

	err := config.ApplyEnv(cfg, fakeEnv(map[string]string{
		config.EnvModelPath:  "",
		config.EnvLogEnabled: "",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.SpeechRecognition != "small" || !cfg.Logging.Enabled {
		t.Errorf("cfg changed by empty variables: %+v %+v", cfg.Model, cfg.Logging)
	}
}

func TestApplyEnv_BadBool(t *testing.T) {
	t.Parallel()
	err := config.ApplyEnv(&config.Config{}, fakeEnv(map[string]string{
		config.EnvLogEnabled: "sometimes",
	}))
	if err == nil || !strings.Contains(err.Error(), config.EnvLogEnabled) {
		t.Errorf("err = %v, want error naming %s", err, config.EnvLogEnabled)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  speech_recognition: base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvModelDir, dir)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.SpeechRecognition != "base" || cfg.Model.Dir != dir {
		t.Errorf("model = %+v", cfg.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := config.LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") = %v", err)
	}
	if err := config.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(config.EnvLLMBaseURL+"=http://127.0.0.1:11500\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registers cleanup; the variable must be unset for godotenv to apply it.
	t.Setenv(config.EnvLLMBaseURL, "")
	os.Unsetenv(config.EnvLLMBaseURL)

	if err := config.LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv(config.EnvLLMBaseURL); got != "http://127.0.0.1:11500" {
		t.Errorf("%s = %q", config.EnvLLMBaseURL, got)
	}
}

func TestLoadEnvFile_ExistingWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(config.EnvModelDir+"=/from/file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvModelDir, "/from/shell")

	if err := config.LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(config.EnvModelDir); got != "/from/shell" {
		t.Errorf("%s = %q, want shell value", config.EnvModelDir, got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*config.Config) {},
		},
		{
			name:    "sample rate",
			mutate:  func(c *config.Config) { c.Audio.SampleRate = 12345 },
			wantErr: "audio.sample_rate",
		},
		{
			name:    "chunk larger than a second",
			mutate:  func(c *config.Config) { c.Audio.ChunkSize = 20000 },
			wantErr: "audio.chunk_size",
		},
		{
			name:    "fallback equals primary",
			mutate:  func(c *config.Config) { c.Model.Fallback = "tiny" },
			wantErr: "model.fallback",
		},
		{
			name:    "silence above speech",
			mutate:  func(c *config.Config) { c.VAD.SilenceThreshold = 900 },
			wantErr: "vad.silence_threshold",
		},
		{
			name:    "min speech not shorter than max",
			mutate:  func(c *config.Config) { c.VAD.MinSpeech = 10 * time.Second },
			wantErr: "vad.min_speech",
		},
		{
			name:    "duplicate resolvers",
			mutate:  func(c *config.Config) { c.Intent.Resolvers = []string{"pattern", "pattern"} },
			wantErr: "duplicate",
		},
		{
			name: "llm without model",
			mutate: func(c *config.Config) {
				c.Intent.Resolvers = []string{"pattern", "llm"}
				c.Intent.LLM.Name = "ollama"
			},
			wantErr: "intent.llm.model",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *config.Config) { c.Commands.ConfidenceThreshold = 1.5 },
			wantErr: "commands.confidence_threshold",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *config.Config) { c.Commands.ConfidenceThreshold = -0.1 },
			wantErr: "out of range (0, 1]",
		},
		{
			name:   "threshold exactly one",
			mutate: func(c *config.Config) { c.Commands.ConfidenceThreshold = 1 },
		},
		{
			name:    "backoff above max",
			mutate:  func(c *config.Config) { c.Pipeline.Backoff = time.Minute },
			wantErr: "pipeline.backoff",
		},
		{
			name:    "speech rate",
			mutate:  func(c *config.Config) { c.Feedback.SpeechRate = 20 },
			wantErr: "feedback.speech_rate",
		},
		{
			name:    "wildcard listen address",
			mutate:  func(c *config.Config) { c.Server.ListenAddr = ":8080" },
			wantErr: "not a loopback address",
		},
		{
			name:    "public listen address",
			mutate:  func(c *config.Config) { c.Server.ListenAddr = "192.168.1.10:8080" },
			wantErr: "not a loopback address",
		},
		{
			name:   "localhost listen address",
			mutate: func(c *config.Config) { c.Server.ListenAddr = "localhost:9470" },
		},
		{
			name:   "ipv6 loopback listen address",
			mutate: func(c *config.Config) { c.Server.ListenAddr = "[::1]:9470" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromReader_ZeroThresholdUsesDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("commands:\n  confidence_threshold: 0\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Commands.ConfidenceThreshold != 0.6 {
		t.Errorf("confidence_threshold = %v, want default 0.6", cfg.Commands.ConfidenceThreshold)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Audio.SampleRate = 1
	cfg.Pipeline.MaxRetries = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate: want error")
	}
	for _, want := range []string{"audio.sample_rate", "pipeline.max_retries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, missing %q", err, want)
		}
	}
}
