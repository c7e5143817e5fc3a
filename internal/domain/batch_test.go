package domain_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brightpath/llmgate/internal/domain"
)

func batchRequests(n int) []*domain.CompletionRequest {
	requests := make([]*domain.CompletionRequest, n)
	for i := range requests {
		requests[i] = &domain.CompletionRequest{
			Model: "test-model",
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: "item " + strconv.Itoa(i)},
			},
		}
	}
	return requests
}

func TestBatchScheduler_Run(t *testing.T) {
	t.Run("should preserve input order in results", func(t *testing.T) {
		provider := &mockProvider{
			name: "test-provider",
			completeFunc: func(_ context.Context, model domain.ModelDescriptor, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
				return &domain.CompletionResult{
					Model:   model.LogicalID,
					Content: "echo: " + req.Messages[0].Content,
				}, nil
			},
		}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 50)

		items := scheduler.Run(context.Background(), "user-1", false, batchRequests(20), 4)

		require.Len(t, items, 20)
		for i, item := range items {
			require.Equal(t, i, item.Index)
			require.NoError(t, item.Err)
			require.Equal(t, "echo: item "+strconv.Itoa(i), item.Result.Content)
		}
	})

	t.Run("should never exceed the concurrency ceiling", func(t *testing.T) {
		provider := &mockProvider{
			name: "test-provider",
			completeFunc: func(_ context.Context, model domain.ModelDescriptor, _ *domain.CompletionRequest) (*domain.CompletionResult, error) {
				time.Sleep(20 * time.Millisecond)
				return &domain.CompletionResult{Model: model.LogicalID, Content: "ok"}, nil
			},
		}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 50)

		items := scheduler.Run(context.Background(), "user-1", false, batchRequests(12), 3)

		require.Len(t, items, 12)
		provider.mu.Lock()
		peak := provider.maxInFlight
		provider.mu.Unlock()
		require.LessOrEqual(t, int(peak), 3)
		require.Positive(t, int(peak))
	})

	t.Run("should isolate item failures", func(t *testing.T) {
		provider := &mockProvider{
			name: "test-provider",
			completeFunc: func(_ context.Context, model domain.ModelDescriptor, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
				if req.Messages[0].Content == "item 2" {
					return nil, errors.New("boom")
				}
				return &domain.CompletionResult{Model: model.LogicalID, Content: "ok"}, nil
			},
		}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 50)

		items := scheduler.Run(context.Background(), "user-1", false, batchRequests(5), 2)

		require.Len(t, items, 5)
		for i, item := range items {
			if i == 2 {
				require.Error(t, item.Err)
				require.Nil(t, item.Result)
				continue
			}
			require.NoError(t, item.Err)
			require.NotNil(t, item.Result)
		}
	})

	t.Run("should consume quota per item", func(t *testing.T) {
		provider := &mockProvider{name: "test-provider"}
		limiter := newAllowingLimiter()
		gateway := newTestGateway(provider, limiter)
		scheduler := domain.NewBatchScheduler(gateway, 50)

		scheduler.Run(context.Background(), "user-1", false, batchRequests(7), 0)

		require.Equal(t, 7, limiter.callCount())
	})

	t.Run("should fall back to default concurrency", func(t *testing.T) {
		provider := &mockProvider{
			name: "test-provider",
			completeFunc: func(_ context.Context, model domain.ModelDescriptor, _ *domain.CompletionRequest) (*domain.CompletionResult, error) {
				time.Sleep(10 * time.Millisecond)
				return &domain.CompletionResult{Model: model.LogicalID, Content: "ok"}, nil
			},
		}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 2)

		items := scheduler.Run(context.Background(), "user-1", false, batchRequests(8), -1)

		require.Len(t, items, 8)
		provider.mu.Lock()
		peak := provider.maxInFlight
		provider.mu.Unlock()
		require.LessOrEqual(t, int(peak), 2)
	})

	t.Run("should return empty result set for empty batch", func(t *testing.T) {
		provider := &mockProvider{name: "test-provider"}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 50)

		items := scheduler.Run(context.Background(), "user-1", false, nil, 4)

		require.Empty(t, items)
		require.Zero(t, int(provider.completeCalls))
	})

	t.Run("should keep rejected items addressable by index", func(t *testing.T) {
		provider := &mockProvider{name: "test-provider"}
		gateway := newTestGateway(provider, newAllowingLimiter())
		scheduler := domain.NewBatchScheduler(gateway, 50)

		requests := batchRequests(3)
		requests[1].Model = "no-such-model"

		items := scheduler.Run(context.Background(), "user-1", false, requests, 2)

		require.NoError(t, items[0].Err)
		require.ErrorIs(t, items[1].Err, domain.ErrUnknownModel)
		require.NoError(t, items[2].Err)
		require.Same(t, requests[1], items[1].Request)
	})
}
