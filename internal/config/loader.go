package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":  {"portaudio"},
	"vad":    {"energy"},
	"stt":    {"whisper"},
	"intent": {"pattern", "llm"},
	"llm":    {"ollama", "llamacpp", "llamafile"},
}

// SupportedSampleRates are the pipeline rates accepted in audio.sample_rate.
var SupportedSampleRates = []int{8000, 16000, 22050, 32000, 44100, 48000}

// Environment variables that override file values.
const (
	EnvModelPath  = "VOXPRIVATE_MODEL_PATH"
	EnvModelDir   = "VOXPRIVATE_MODEL_DIR"
	EnvLogEnabled = "VOXPRIVATE_LOG_ENABLED"
	EnvLogVerbose = "VOXPRIVATE_LOG_VERBOSE"
	EnvListenAddr = "VOXPRIVATE_LISTEN_ADDR"
	EnvLLMBaseURL = "VOXPRIVATE_LLM_BASE_URL"
)

// LookupFunc reads an environment variable, like [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, nil)
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %q: %w", path, err)
	}
	return nil
}

func parse(data []byte, env LookupFunc) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if env != nil {
		if err := ApplyEnv(cfg, env); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the VOXPRIVATE_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		cfg.Model.SpeechRecognition = v
	}
	if v, ok := lookup(EnvModelDir); ok && v != "" {
		cfg.Model.Dir = v
	}
	if v, ok := lookup(EnvListenAddr); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := lookup(EnvLLMBaseURL); ok && v != "" {
		cfg.Intent.LLM.BaseURL = v
	}
	for key, dst := range map[string]*bool{
		EnvLogEnabled: &cfg.Logging.Enabled,
		EnvLogVerbose: &cfg.Logging.Verbose,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a boolean", key, v))
			continue
		}
		*dst = b
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Audio.Provider, "portaudio")
	setDefault(&cfg.Audio.SampleRate, 16000)
	setDefault(&cfg.Audio.ChunkSize, 1024)

	setDefault(&cfg.Model.Provider, "whisper")
	setDefault(&cfg.Model.SpeechRecognition, "tiny")
	setDefault(&cfg.Model.Dir, "models")
	setDefault(&cfg.Model.Language, "en")

	setDefault(&cfg.VAD.Provider, "energy")
	setDefault(&cfg.VAD.SpeechThreshold, 500)
	setDefault(&cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold)
	setDefault(&cfg.VAD.Hangover, 500*time.Millisecond)
	setDefault(&cfg.VAD.MaxUtterance, 10*time.Second)
	setDefault(&cfg.VAD.MinSpeech, 100*time.Millisecond)

	if len(cfg.Intent.Resolvers) == 0 {
		cfg.Intent.Resolvers = []string{"pattern"}
	}
	if slices.Contains(cfg.Intent.Resolvers, "llm") {
		setDefault(&cfg.Intent.LLM.Name, "ollama")
	}

	setDefault(&cfg.Commands.ConfidenceThreshold, 0.6)
	setDefault(&cfg.Commands.Timeout, 10*time.Second)

	setDefault(&cfg.Pipeline.MaxRetries, 8)
	setDefault(&cfg.Pipeline.Backoff, 500*time.Millisecond)
	setDefault(&cfg.Pipeline.MaxBackoff, 10*time.Second)
	setDefault(&cfg.Pipeline.StopTimeout, 15*time.Second)

	setDefault(&cfg.Feedback.SpeechRate, 175)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Audio
	if !slices.Contains(SupportedSampleRates, cfg.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: %v", cfg.Audio.SampleRate, SupportedSampleRates))
	}
	if cfg.Audio.ChunkSize <= 0 || cfg.Audio.ChunkSize > cfg.Audio.SampleRate {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be between 1 and one second of samples", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must not be negative", cfg.Audio.CaptureRate))
	}

	// Model
	if strings.TrimSpace(cfg.Model.SpeechRecognition) == "" {
		errs = append(errs, errors.New("model.speech_recognition is required"))
	}
	if cfg.Model.Fallback != "" && cfg.Model.Fallback == cfg.Model.SpeechRecognition {
		errs = append(errs, errors.New("model.fallback must differ from model.speech_recognition"))
	}
	if cfg.Model.GPUAcceleration {
		slog.Info("model.gpu_acceleration is set; GPU use depends on how the inference library was built")
	}

	// VAD
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SilenceThreshold < 0 {
		errs = append(errs, errors.New("vad thresholds must not be negative"))
	}
	if cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.0f must not exceed vad.speech_threshold %.0f", cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.MinSpeech >= cfg.VAD.MaxUtterance {
		errs = append(errs, fmt.Errorf("vad.min_speech %v must be shorter than vad.max_utterance %v", cfg.VAD.MinSpeech, cfg.VAD.MaxUtterance))
	}

	// Intent
	seen := make(map[string]int, len(cfg.Intent.Resolvers))
	for i, name := range cfg.Intent.Resolvers {
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("intent.resolvers[%d] %q is a duplicate of intent.resolvers[%d]", i, name, prev))
		}
		seen[name] = i
		validateProviderName("intent", name)
	}
	if _, ok := seen["llm"]; ok {
		validateProviderName("llm", cfg.Intent.LLM.Name)
		if cfg.Intent.LLM.Model == "" {
			errs = append(errs, errors.New("intent.llm.model is required when the llm resolver is enabled"))
		}
	}

	// Commands
	if t := cfg.Commands.ConfidenceThreshold; !(t > 0 && t <= 1) {
		errs = append(errs, fmt.Errorf("commands.confidence_threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.Commands.Timeout < 0 {
		errs = append(errs, errors.New("commands.timeout must not be negative"))
	}

	// Pipeline
	if cfg.Pipeline.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries %d must be at least 1", cfg.Pipeline.MaxRetries))
	}
	if cfg.Pipeline.Backoff > cfg.Pipeline.MaxBackoff {
		errs = append(errs, fmt.Errorf("pipeline.backoff %v exceeds pipeline.max_backoff %v", cfg.Pipeline.Backoff, cfg.Pipeline.MaxBackoff))
	}

	// Logging
	if (cfg.Logging.File != "" || cfg.Logging.Journal != "") && !cfg.Logging.Enabled {
		slog.Warn("logging.file and logging.journal are ignored while logging.enabled is false")
	}

	// Feedback
	if cfg.Feedback.SpeechRate < 50 || cfg.Feedback.SpeechRate > 500 {
		errs = append(errs, fmt.Errorf("feedback.speech_rate %d is out of range [50, 500]", cfg.Feedback.SpeechRate))
	}

	// Server
	if cfg.Server.ListenAddr != "" {
		if err := requireLoopbackAddr(cfg.Server.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("server.listen_addr: %w", err))
		}
	}

	for _, kind := range []struct{ kind, name string }{
		{"audio", cfg.Audio.Provider},
		{"vad", cfg.VAD.Provider},
		{"stt", cfg.Model.Provider},
	} {
		validateProviderName(kind.kind, kind.name)
	}

	return errors.Join(errs...)
}

// requireLoopbackAddr accepts host:port addresses bound to localhost or a
// loopback IP. An empty host would listen on every interface.
func requireLoopbackAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%q is not a loopback address", addr)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
