// Package retry provides exponential backoff with jitter for transient
// failures.
package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"unibox/internal/models"
)

// jitterShare is the fraction of the computed delay randomized in each
// direction, so simultaneous retries spread out instead of stampeding.
const jitterShare = 0.25

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" validate:"min=10ms,max=10s"`
	MaxDelay     time.Duration `json:"max_delay" validate:"min=100ms,max=5m"`
	Multiplier   float64       `json:"multiplier" validate:"min=1.0,max=10.0"`
	MaxAttempts  int           `json:"max_attempts" validate:"min=1,max=20"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// FromRetryConfig builds a BackoffConfig from application retry settings,
// falling back to defaults for zero values.
func FromRetryConfig(cfg models.RetryConfig) BackoffConfig {
	base := DefaultBackoffConfig()
	if cfg.InitialBackoffMs > 0 {
		base.InitialDelay = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		base.MaxDelay = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		base.MaxAttempts = cfg.MaxAttempts
	}
	return base
}

// Backoff retries an operation with exponentially growing delays.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{config: config}
}

// Retry runs operation until it succeeds or attempts are exhausted. Every
// failure counts as retryable.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate runs operation until it succeeds, the predicate rules
// a failure permanent, or attempts run out. The last error seen is
// returned; context cancellation wins over everything.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}

	return lastErr
}

// delay computes the wait after the given attempt number.
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if d > float64(b.config.MaxDelay) {
		d = float64(b.config.MaxDelay)
	}

	if b.config.Jitter {
		d += (secureFloat64() - 0.5) * 2 * jitterShare * d
		if d > float64(b.config.MaxDelay) {
			d = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(d)
}

// secureFloat64 returns a uniform float64 in [0, 1).
func secureFloat64() float64 {
	const resolution = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(resolution))
	if err != nil {
		return float64(time.Now().UnixNano()%resolution) / resolution
	}
	return float64(n.Int64()) / resolution
}
