package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/voxprivate/pkg/audio"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/llm"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// IntentFactory builds a resolver for the given command catalog.
type IntentFactory func(cfg *Config, cmds []intent.Command) (intent.Provider, error)

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	audio  map[string]func(AudioConfig) (audio.Source, error)
	vad    map[string]func(VADConfig) (vad.Engine, error)
	stt    map[string]func(ModelConfig) (stt.Provider, error)
	llm    map[string]func(ProviderEntry) (llm.Provider, error)
	intent map[string]IntentFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio:  make(map[string]func(AudioConfig) (audio.Source, error)),
		vad:    make(map[string]func(VADConfig) (vad.Engine, error)),
		stt:    make(map[string]func(ModelConfig) (stt.Provider, error)),
		llm:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
		intent: make(map[string]IntentFactory),
	}
}

// RegisterAudio registers an audio source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ModelConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers a language model backend factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterIntent registers an intent resolver factory under name.
func (r *Registry) RegisterIntent(name string, factory IntentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intent[name] = factory
}

// CreateAudio instantiates the audio source named by cfg.Provider.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateVAD instantiates the VAD engine named by cfg.Provider.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateSTT instantiates the transcriber named by cfg.Provider.
func (r *Registry) CreateSTT(cfg ModelConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateLLM instantiates the language model backend named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateIntent instantiates the resolver registered under name.
func (r *Registry) CreateIntent(name string, cfg *Config, cmds []intent.Command) (intent.Provider, error) {
	r.mu.RLock()
	factory, ok := r.intent[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: intent/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg, cmds)
}

// Names returns the sorted provider names registered for kind ("audio",
// "vad", "stt", "llm" or "intent").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "audio":
		names = keys(r.audio)
	case "vad":
		names = keys(r.vad)
	case "stt":
		names = keys(r.stt)
	case "llm":
		names = keys(r.llm)
	case "intent":
		names = keys(r.intent)
	}
	sort.Strings(names)
	return names
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
