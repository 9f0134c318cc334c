// Package config provides the configuration schema, loader, and provider
// registry for the VoxPrivate voice assistant.
package config

import "time"

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Model    ModelConfig    `yaml:"model"`
	VAD      VADConfig      `yaml:"vad"`
	Intent   IntentConfig   `yaml:"intent"`
	Commands CommandsConfig `yaml:"commands"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Server   ServerConfig   `yaml:"server"`
}

// AudioConfig describes microphone capture.
type AudioConfig struct {
	// Provider selects the registered audio source. Default "portaudio".
	Provider string `yaml:"provider"`

	// SampleRate is the pipeline sample rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the number of samples per frame. Default 1024.
	ChunkSize int `yaml:"chunk_size"`

	// CaptureRate is the rate requested from the device when it cannot
	// deliver SampleRate directly. Zero means SampleRate.
	CaptureRate int `yaml:"capture_rate"`

	// Device selects an input device by name. Empty selects the default.
	Device string `yaml:"device"`
}

// ModelConfig describes the speech recognition model.
type ModelConfig struct {
	// Provider selects the registered transcriber. Default "whisper".
	Provider string `yaml:"provider"`

	// SpeechRecognition is a model identifier (tiny, base.en, ...) resolved
	// inside Dir, or a path to a model file. Default "tiny".
	SpeechRecognition string `yaml:"speech_recognition"`

	// Dir holds downloaded model files. Default "models".
	Dir string `yaml:"dir"`

	// GPUAcceleration is reported at startup. Whether inference uses the
	// GPU is decided when the inference library is built.
	GPUAcceleration bool `yaml:"gpu_acceleration"`

	// Language is the recognition language. Default "en".
	Language string `yaml:"language"`

	// Threads is the number of inference threads. Zero keeps the library
	// default.
	Threads uint `yaml:"threads"`

	// Fallback is a second model identifier, usually a smaller one, tried
	// when the primary model fails. Empty disables the fallback.
	Fallback string `yaml:"fallback"`
}

// VADConfig tunes voice activity detection and utterance assembly.
type VADConfig struct {
	// Provider selects the registered VAD engine. Default "energy".
	Provider string `yaml:"provider"`

	// SpeechThreshold is the mean absolute amplitude (int16 scale) that
	// counts as speech. Default 500.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceThreshold ends speech once the level drops below it. Default
	// SpeechThreshold.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// Hangover is the silence that closes an utterance. Default 500ms.
	Hangover time.Duration `yaml:"hangover"`

	// MaxUtterance truncates long utterances. Default 10s.
	MaxUtterance time.Duration `yaml:"max_utterance"`

	// MinSpeech discards shorter speech bursts. Default 100ms.
	MinSpeech time.Duration `yaml:"min_speech"`
}

// IntentConfig selects and orders the intent resolvers.
type IntentConfig struct {
	// Resolvers lists registered resolver names, tried in order. A resolver
	// answering "no match" hands over to the next one. Default ["pattern"].
	Resolvers []string `yaml:"resolvers"`

	// DisableFuzzy turns off phonetic correction in the pattern resolver.
	DisableFuzzy bool `yaml:"disable_fuzzy"`

	// LLM configures the local language model used by the "llm" resolver.
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration block of a language model backend. The
// Name field selects the factory in the [Registry].
type ProviderEntry struct {
	// Name selects the backend (e.g., "ollama", "llamacpp").
	Name string `yaml:"name"`

	// APIKey is passed to backends that require one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint. It must point at
	// localhost or a loopback address.
	BaseURL string `yaml:"base_url"`

	// Model selects the model served by the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific values.
	Options map[string]any `yaml:"options"`
}

// CommandsConfig configures the built-in commands and the dispatcher.
type CommandsConfig struct {
	// ConfidenceThreshold rejects intents scored below it. Valid values lie
	// in (0, 1]; zero or an absent key selects the default 0.6, since a zero
	// threshold would accept every intent.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// Timeout bounds a single handler. Default 10s.
	Timeout time.Duration `yaml:"timeout"`

	// SandboxDir receives files created by voice. Default ~/Desktop.
	SandboxDir string `yaml:"sandbox_dir"`

	// ScreenshotDir receives screenshots. Default ~/Pictures.
	ScreenshotDir string `yaml:"screenshot_dir"`

	// BrowserURL is opened by "open browser".
	BrowserURL string `yaml:"browser_url"`

	// AllowPower registers shutdown, restart and sleep.
	AllowPower bool `yaml:"allow_power"`
}

// PipelineConfig tunes device recovery and shutdown.
type PipelineConfig struct {
	// MaxRetries bounds reopen attempts after a device failure. Default 8.
	MaxRetries int `yaml:"max_retries"`

	// Backoff and MaxBackoff shape the retry delay. Defaults 500ms and 10s.
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// StopTimeout bounds the drain on shutdown. Default 15s.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LoggingConfig controls log sinks. Logging is off unless Enabled is set;
// transcript text is logged only when Verbose is also set.
type LoggingConfig struct {
	Enabled bool `yaml:"enabled"`
	Verbose bool `yaml:"verbose"`

	// File, if set, receives JSON log records in addition to the console.
	File string `yaml:"file"`

	// Journal, if set, receives one JSON line per command outcome.
	Journal string `yaml:"journal"`
}

// FeedbackConfig controls how results reach the user.
type FeedbackConfig struct {
	// Quiet suppresses console output of result messages.
	Quiet bool `yaml:"quiet"`

	// Speech reads results aloud through espeak-ng or say.
	Speech bool `yaml:"speech"`

	// SpeechRate in words per minute. Default 175.
	SpeechRate int `yaml:"speech_rate"`
}

// ServerConfig configures the local HTTP server for health, metrics and the
// control socket. The server is disabled when ListenAddr is empty.
type ServerConfig struct {
	// ListenAddr must be a loopback address (e.g., "127.0.0.1:9470").
	ListenAddr string `yaml:"listen_addr"`
}
