package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brightpath/llmgate/internal/observability"
)

func TestContextValues(t *testing.T) {
	t.Run("should round-trip request scoped values", func(t *testing.T) {
		ctx := context.Background()
		ctx = observability.WithTraceID(ctx, "trace-1")
		ctx = observability.WithRequestID(ctx, "req-1")
		ctx = observability.WithUserID(ctx, "user-1")
		ctx = observability.WithProvider(ctx, "openai")
		ctx = observability.WithModel(ctx, "gpt-4o-mini")

		require.Equal(t, "trace-1", observability.GetTraceID(ctx))
		require.Equal(t, "req-1", observability.GetRequestID(ctx))
		require.Equal(t, "user-1", observability.GetUserID(ctx))
		require.Equal(t, "openai", observability.GetProvider(ctx))
		require.Equal(t, "gpt-4o-mini", observability.GetModel(ctx))
	})

	t.Run("should return empty strings for bare context", func(t *testing.T) {
		ctx := context.Background()

		require.Empty(t, observability.GetTraceID(ctx))
		require.Empty(t, observability.GetRequestID(ctx))
		require.Empty(t, observability.GetUserID(ctx))
	})
}

func TestGenerateTraceID(t *testing.T) {
	first := observability.GenerateTraceID()
	second := observability.GenerateTraceID()

	require.Len(t, first, 32)
	require.NotEqual(t, first, second)
}

func TestEventBus_Publish(t *testing.T) {
	t.Run("should emit event with request id", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		bus := observability.NewEventBus(zap.New(core))

		ctx := observability.WithRequestID(context.Background(), "req-1")
		bus.Publish(ctx, "completion.usage", map[string]interface{}{
			"user_id":      "user-1",
			"input_tokens": 10,
		})

		entries := logs.All()
		require.Len(t, entries, 1)
		require.Equal(t, "completion.usage", entries[0].Message)

		fields := entries[0].ContextMap()
		require.Equal(t, "req-1", fields["request_id"])
		require.Equal(t, "user-1", fields["user_id"])
	})

	t.Run("should tolerate nil logger", func(t *testing.T) {
		bus := observability.NewEventBus(nil)
		bus.Publish(context.Background(), "stream.usage", nil)
	})
}
