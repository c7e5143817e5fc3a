package domain

import "context"

// Provider represents any LLM provider backend.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, model ModelDescriptor, req *CompletionRequest) (*CompletionResult, error)

	// Stream sends a completion request and returns a stream of chunks.
	// The channel is closed after the final chunk; the caller must drain
	// it or cancel ctx to release the underlying connection.
	Stream(ctx context.Context, model ModelDescriptor, req *CompletionRequest) (<-chan StreamChunk, error)

	// CompleteStructured invokes the provider's structured-output
	// capability and returns a payload already validated against schema.
	CompleteStructured(ctx context.Context, model ModelDescriptor, req *CompletionRequest, schema *Schema) (*CompletionResult, error)

	// Name returns the provider identifier.
	Name() string
}

// ModelRegistry resolves logical model ids to descriptors and providers.
// Populated once at process start; read-only thereafter.
type ModelRegistry interface {
	// Resolve maps a logical id (or a role alias such as "fast") to its
	// descriptor. Fails with ErrUnknownModel for unrecognized ids.
	Resolve(logicalID string) (ModelDescriptor, error)

	// Supports reports whether the model advertises the capability.
	// Unknown models support nothing.
	Supports(logicalID string, c Capability) bool

	// Provider returns the adapter registered under the given provider id.
	Provider(providerID string) (Provider, error)
}

// RateLimiter enforces the per-user daily request quota.
type RateLimiter interface {
	// CheckAndIncrement admits or denies a request for userID. The check
	// and the increment are atomic with respect to concurrent requests
	// from the same user. Whitelisted identities are always admitted.
	CheckAndIncrement(ctx context.Context, userID string, whitelisted bool) (Decision, error)
}

// Retrier wraps an operation with the gateway's retry policy.
type Retrier interface {
	// Do runs op, retrying transient failures with bounded backoff.
	// Permanent failures are surfaced immediately.
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// EventPublisher publishes events for observability and usage tracking.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// CostCalculator calculates cost based on token usage.
type CostCalculator interface {
	// Calculate returns the total USD cost for a given model and usage.
	Calculate(ctx context.Context, model ModelDescriptor, usage Usage) (float64, error)
}
