// Package retry wraps provider calls with bounded exponential backoff
// and a per-provider circuit breaker. Transient failures (timeouts,
// provider rate limits, 5xx) are retried; everything else surfaces
// immediately.
package retry

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Config controls the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Policy implements domain.Retrier with exponential backoff and
// randomized jitter to avoid synchronized retry storms across
// concurrent callers.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// New creates a retry policy, filling in defaults for zero fields.
func New(cfg Config) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	return &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
}

// Do runs op, retrying transient failures up to the configured attempt
// budget. After exhausting attempts the last transient failure is
// surfaced as ErrProviderUnavailable.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.baseDelay
	expo.MaxInterval = p.maxDelay
	expo.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	schedule := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.maxAttempts-1)), ctx)

	logger := observability.FromContext(ctx)

	attempts := 0
	var lastErr error

	err := backoff.Retry(func() error {
		attempts++

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}

		logger.Warn("transient provider failure, will retry",
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return err
	}, schedule)
	if err == nil {
		return nil
	}

	if lastErr != nil && domain.IsTransient(lastErr) {
		return fmt.Errorf("%w after %d attempts: %w", domain.ErrProviderUnavailable, attempts, lastErr)
	}

	return err
}
