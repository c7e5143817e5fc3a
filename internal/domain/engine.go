package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/observability"
)

// Usage event types published by the gateway.
const (
	EventCompletionUsage = "completion.usage"
	EventStreamUsage     = "stream.usage"
)

// Gateway orchestrates a completion request end to end: validation,
// rate-limit check, provider dispatch through the retry policy, and
// usage accounting. Per request the lifecycle is strictly
// validate -> rate-check -> cache lookup -> dispatch -> succeeded/failed; quota is
// consumed at admission and never refunded, so a failed provider call
// still counts against the daily limit.
type Gateway struct {
	registry ModelRegistry
	limiter  RateLimiter
	retrier  Retrier
	costs    CostCalculator
	events   EventPublisher
	cache    ResponseCache
}

// NewGateway creates a new completion gateway (DI constructor). A nil
// cache disables response caching.
func NewGateway(
	registry ModelRegistry,
	limiter RateLimiter,
	retrier Retrier,
	costs CostCalculator,
	events EventPublisher,
	cache ResponseCache,
) *Gateway {
	return &Gateway{
		registry: registry,
		limiter:  limiter,
		retrier:  retrier,
		costs:    costs,
		events:   events,
		cache:    cache,
	}
}

// Complete handles a single blocking completion. Requests carrying a
// response schema are dispatched through the provider's structured
// output capability.
func (g *Gateway) Complete(
	ctx context.Context,
	userID string,
	whitelisted bool,
	req *CompletionRequest,
) (*CompletionResult, error) {
	desc, err := g.validate(req)
	if err != nil {
		return nil, err
	}

	if err := g.admit(ctx, userID, whitelisted); err != nil {
		return nil, err
	}

	provider, err := g.registry.Provider(desc.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	prepared := g.prepare(req, desc)
	ctx = observability.WithProvider(ctx, provider.Name())
	ctx = observability.WithModel(ctx, req.Model)

	if g.cache != nil {
		cached, cacheErr := g.cache.Get(ctx, prepared)
		switch {
		case cacheErr != nil && !errors.Is(cacheErr, ErrCacheMiss):
			observability.FromContext(ctx).Warn("cache lookup failed, continuing without cache",
				zap.Error(cacheErr))
		case cached != nil:
			observability.FromContext(ctx).Info("returning cached completion",
				zap.String("model", req.Model))
			return cached, nil
		}
	}

	start := time.Now()

	var result *CompletionResult
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		var callErr error
		if prepared.ResponseSchema != nil {
			result, callErr = provider.CompleteStructured(ctx, desc, prepared, prepared.ResponseSchema)
		} else {
			result, callErr = provider.Complete(ctx, desc, prepared)
		}
		return callErr
	})
	if err != nil {
		observability.FromContext(ctx).Error("completion failed", zap.Error(err))
		return nil, err
	}

	g.finish(ctx, userID, desc, req, result, start)

	if g.cache != nil {
		if setErr := g.cache.Set(ctx, prepared, result); setErr != nil {
			observability.FromContext(ctx).Warn("failed to store completion in cache",
				zap.Error(setErr))
		}
	}

	return result, nil
}

// CompleteStructured handles a completion constrained to the given
// schema. The validated payload is returned on CompletionResult.Structured.
func (g *Gateway) CompleteStructured(
	ctx context.Context,
	userID string,
	whitelisted bool,
	req *CompletionRequest,
	schema *Schema,
) (*CompletionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: schema cannot be nil", ErrInvalidRequest)
	}

	structured := *req
	structured.ResponseSchema = schema
	return g.Complete(ctx, userID, whitelisted, &structured)
}

// Stream handles a streaming completion. Chunks are delivered in
// generation order; the stream is retried only until the first chunk has
// been emitted. A mid-stream failure terminates the stream with an
// explicit error chunk and is never silently retried.
func (g *Gateway) Stream(
	ctx context.Context,
	userID string,
	whitelisted bool,
	req *CompletionRequest,
) (<-chan StreamChunk, error) {
	desc, err := g.validate(req)
	if err != nil {
		return nil, err
	}
	if !desc.SupportsStreaming {
		return nil, fmt.Errorf("%w: model %s does not support streaming", ErrInvalidRequest, req.Model)
	}
	if req.ResponseSchema != nil {
		return nil, fmt.Errorf("%w: structured output cannot be streamed", ErrInvalidRequest)
	}

	if err := g.admit(ctx, userID, whitelisted); err != nil {
		return nil, err
	}

	provider, err := g.registry.Provider(desc.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	prepared := g.prepare(req, desc)
	ctx = observability.WithProvider(ctx, provider.Name())
	ctx = observability.WithModel(ctx, req.Model)

	// No chunk has been delivered yet, so establishing the stream may be
	// retried like any other provider call.
	var upstream <-chan StreamChunk
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		var callErr error
		upstream, callErr = provider.Stream(ctx, desc, prepared)
		return callErr
	})
	if err != nil {
		observability.FromContext(ctx).Error("stream failed to start", zap.Error(err))
		return nil, err
	}

	return g.relayStream(ctx, userID, desc, prepared, upstream), nil
}

// relayStream forwards provider chunks to the caller, accounts usage
// when the stream finishes, and marks mid-stream failures as interrupted.
func (g *Gateway) relayStream(
	ctx context.Context,
	userID string,
	desc ModelDescriptor,
	req *CompletionRequest,
	upstream <-chan StreamChunk,
) <-chan StreamChunk {
	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		logger := observability.FromContext(ctx)
		outputTokens := 0

		for chunk := range upstream {
			if chunk.Error != nil {
				logger.Error("stream interrupted", zap.Error(chunk.Error))
				interrupted := StreamChunk{
					Delta: "",
					Done:  false,
					Error: fmt.Errorf("%w: %v", ErrStreamInterrupted, chunk.Error),
				}
				select {
				case out <- interrupted:
				case <-ctx.Done():
					// Caller stopped reading; don't block on the send.
				}
				return
			}

			outputTokens += EstimateTokens(chunk.Delta)

			select {
			case out <- chunk:
			case <-ctx.Done():
				// Caller cancelled; stop consuming so the adapter can
				// release the underlying connection.
				return
			}

			if chunk.Done {
				g.publishUsage(ctx, EventStreamUsage, userID, desc, Usage{
					InputTokens:  EstimateMessageTokens(req.Messages),
					OutputTokens: outputTokens,
					TotalTokens:  EstimateMessageTokens(req.Messages) + outputTokens,
					Estimated:    true,
				})
				return
			}
		}

		// Upstream closed without a terminal marker. Emit one so the
		// caller still observes finality, and account what was relayed.
		select {
		case out <- StreamChunk{Delta: "", Done: true, Error: nil}:
		case <-ctx.Done():
			return
		}
		g.publishUsage(ctx, EventStreamUsage, userID, desc, Usage{
			InputTokens:  EstimateMessageTokens(req.Messages),
			OutputTokens: outputTokens,
			TotalTokens:  EstimateMessageTokens(req.Messages) + outputTokens,
			Estimated:    true,
		})
	}()

	return out
}

// validate checks request shape and schema compatibility. Failures wrap
// ErrInvalidRequest (or ErrUnknownModel) and are reported before any
// provider call is made or quota consumed.
func (g *Gateway) validate(req *CompletionRequest) (ModelDescriptor, error) {
	if req == nil {
		return ModelDescriptor{}, fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if req.Model == "" {
		return ModelDescriptor{}, fmt.Errorf("%w: model cannot be empty", ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return ModelDescriptor{}, fmt.Errorf("%w: messages cannot be empty", ErrInvalidRequest)
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return ModelDescriptor{}, fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidRequest, i, msg.Role)
		}
	}

	desc, err := g.registry.Resolve(req.Model)
	if err != nil {
		return ModelDescriptor{}, err
	}

	if req.ResponseSchema != nil {
		if req.ResponseSchema.Name == "" {
			return ModelDescriptor{}, fmt.Errorf("%w: response schema must be named", ErrInvalidRequest)
		}
		if !desc.SupportsStructured {
			return ModelDescriptor{}, fmt.Errorf(
				"%w: model %s does not support structured output", ErrInvalidRequest, req.Model)
		}
	}

	return desc, nil
}

// admit consults the rate limiter. Quota is consumed here, at admission.
func (g *Gateway) admit(ctx context.Context, userID string, whitelisted bool) error {
	if userID == "" {
		return fmt.Errorf("%w: user id cannot be empty", ErrInvalidRequest)
	}

	decision, err := g.limiter.CheckAndIncrement(ctx, userID, whitelisted)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if !decision.Allowed {
		observability.FromContext(ctx).Warn("daily request limit exceeded",
			zap.String("user_id", userID),
			zap.Time("reset_at", decision.ResetAt),
		)
		return &RateLimitError{
			UserID:  userID,
			Limit:   decision.Limit,
			ResetAt: decision.ResetAt,
		}
	}

	return nil
}

// prepare builds the request actually sent to the provider without
// mutating the caller's copy: the system prompt is folded into the
// message sequence and reasoning effort is dropped for models that
// cannot honor it.
func (g *Gateway) prepare(req *CompletionRequest, desc ModelDescriptor) *CompletionRequest {
	out := *req

	if req.SystemPrompt != "" {
		messages := make([]Message, 0, len(req.Messages)+1)
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
		messages = append(messages, req.Messages...)
		out.Messages = messages
		out.SystemPrompt = ""
	}

	if out.ReasoningEffort != "" && !desc.SupportsReasoning {
		out.ReasoningEffort = ""
	}

	return &out
}

// finish records usage on a successful completion.
func (g *Gateway) finish(
	ctx context.Context,
	userID string,
	desc ModelDescriptor,
	req *CompletionRequest,
	result *CompletionResult,
	start time.Time,
) {
	result.Model = req.Model
	result.Latency = time.Since(start)

	cost, _ := g.costs.Calculate(ctx, desc, result.Usage)
	result.Usage.Cost = cost

	observability.FromContext(ctx).Info("completion succeeded",
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
		zap.Float64("cost", cost),
		zap.Duration("latency", result.Latency),
	)

	g.publishUsage(ctx, EventCompletionUsage, userID, desc, result.Usage)
}

func (g *Gateway) publishUsage(ctx context.Context, eventType, userID string, desc ModelDescriptor, usage Usage) {
	if g.events == nil {
		return
	}

	g.events.Publish(ctx, eventType, map[string]interface{}{
		"user_id":       userID,
		"model":         desc.LogicalID,
		"provider":      desc.ProviderID,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"cost":          usage.Cost,
		"estimated":     usage.Estimated,
	})
}
