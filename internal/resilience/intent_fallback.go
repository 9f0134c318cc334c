package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

var _ intent.Provider = (*IntentFallback)(nil)

// IntentFallback implements [intent.Provider] over a chain of resolvers. A
// resolver answering [intent.ErrNoMatch] passes the transcript on to the next
// one without counting as a failure.
type IntentFallback struct {
	group *FallbackGroup[intent.Provider]
}

// NewIntentFallback creates an [IntentFallback] with primary tried first.
// cfg.CircuitBreaker.IsFailure is replaced so that NoMatch and context
// errors never trip a breaker.
func NewIntentFallback(primary intent.Provider, primaryName string, cfg FallbackConfig) *IntentFallback {
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		return !errors.Is(err, intent.ErrNoMatch) && !IsContextError(err)
	}
	return &IntentFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a resolver to the chain.
func (f *IntentFallback) AddFallback(name string, p intent.Provider) {
	f.group.AddFallback(name, p)
}

// Resolve returns the first intent any resolver produces.
func (f *IntentFallback) Resolve(ctx context.Context, t stt.Transcript) (intent.Intent, error) {
	return ExecuteWithResult(f.group, func(p intent.Provider) (intent.Intent, error) {
		return p.Resolve(ctx, t)
	})
}
