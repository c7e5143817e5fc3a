package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/brightpath/llmgate/internal/domain"
)

// BreakerConfig controls the per-provider circuit breaker.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	MaxRequests      uint32 // admitted while half-open
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		MaxRequests:      3,
		OpenTimeout:      60 * time.Second,
	}
}

// breakerProvider fails fast once a provider has produced enough
// consecutive transient failures, instead of burning the retry budget on
// a backend that is clearly down.
type breakerProvider struct {
	inner domain.Provider
	cb    *gobreaker.CircuitBreaker
}

// WrapWithBreaker wraps a provider with a circuit breaker. Caller errors
// (invalid request, schema mismatch) do not trip the breaker; only
// transient provider failures count.
func WrapWithBreaker(provider domain.Provider, cfg BreakerConfig) domain.Provider {
	if !cfg.Enabled {
		return provider
	}

	settings := gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
	}

	return &breakerProvider{
		inner: provider,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *breakerProvider) Name() string { return b.inner.Name() }

func (b *breakerProvider) Complete(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (*domain.CompletionResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, model, req)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result.(*domain.CompletionResult), nil
}

func (b *breakerProvider) CompleteStructured(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
	schema *domain.Schema,
) (*domain.CompletionResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.CompleteStructured(ctx, model, req, schema)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result.(*domain.CompletionResult), nil
}

// Stream runs stream establishment through the breaker. Failures after
// the first chunk arrive on the chunk channel and are not counted; the
// breaker only sees whether the stream could be opened.
func (b *breakerProvider) Stream(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (<-chan domain.StreamChunk, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Stream(ctx, model, req)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result.(<-chan domain.StreamChunk), nil
}

// mapErr converts breaker rejections into ErrProviderUnavailable so the
// retry policy treats them as non-retryable within the request.
func (b *breakerProvider) mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open for provider %s", domain.ErrProviderUnavailable, b.inner.Name())
	}
	return err
}
