package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxprivate/pkg/audio"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 8
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// ReconnectConfig configures device reconnection.
type ReconnectConfig struct {
	// MaxRetries is the number of Open attempts before giving up. Default 8.
	MaxRetries int

	// Backoff is the wait after the first failed attempt. It doubles up to
	// MaxBackoff. Defaults 500ms and 10s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnAttempt is called before every Open attempt. May be nil.
	OnAttempt func(attempt int)
}

// Reconnector reopens an [audio.Source] with exponential backoff after a
// device failure.
type Reconnector struct {
	src        audio.Source
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onAttempt  func(int)
}

// NewReconnector creates a [Reconnector] for src.
func NewReconnector(src audio.Source, cfg ReconnectConfig) *Reconnector {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		src:        src,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		onAttempt:  cfg.OnAttempt,
	}
}

// Reopen closes the source and opens it again, retrying with backoff. After
// the last failed attempt it returns an error wrapping [ErrReconnectFailed]
// and the final Open error. A cancelled ctx returns ctx.Err().
func (r *Reconnector) Reopen(ctx context.Context) error {
	if err := r.src.Close(); err != nil {
		slog.Debug("pipeline: closing failed source", "err", err)
	}

	backoff := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.onAttempt != nil {
			r.onAttempt(attempt)
		}
		slog.Info("pipeline: reopening audio source",
			"attempt", attempt,
			"max_retries", r.maxRetries,
		)

		err := r.src.Open(ctx)
		if err == nil {
			slog.Info("pipeline: audio source reopened", "attempt", attempt)
			return nil
		}
		lastErr = err
		slog.Warn("pipeline: reopen attempt failed", "attempt", attempt, "err", err)

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.maxBackoff)
	}

	slog.Error("pipeline: giving up on audio device", "max_retries", r.maxRetries, "err", lastErr)
	return fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, r.maxRetries, lastErr)
}
