package domain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/observability"
)

// BatchScheduler fans a set of independent completion requests out
// through the gateway under a shared concurrency ceiling. One item's
// failure never cancels or blocks its siblings, and the output slice is
// index-aligned with the input regardless of completion order.
type BatchScheduler struct {
	gateway            *Gateway
	defaultConcurrency int
}

// NewBatchScheduler creates a new batch scheduler (DI constructor).
func NewBatchScheduler(gateway *Gateway, defaultConcurrency int) *BatchScheduler {
	if defaultConcurrency < 1 {
		defaultConcurrency = 1
	}
	return &BatchScheduler{
		gateway:            gateway,
		defaultConcurrency: defaultConcurrency,
	}
}

// Run executes every request and returns once all items have settled.
// At most maxConcurrency requests are in flight at once; zero or
// negative selects the configured default.
func (s *BatchScheduler) Run(
	ctx context.Context,
	userID string,
	whitelisted bool,
	requests []*CompletionRequest,
	maxConcurrency int,
) []BatchItem {
	if maxConcurrency < 1 {
		maxConcurrency = s.defaultConcurrency
	}

	logger := observability.FromContext(ctx)
	logger.Info("batch started",
		zap.Int("items", len(requests)),
		zap.Int("max_concurrency", maxConcurrency),
	)

	items := make([]BatchItem, len(requests))
	semaphore := make(chan struct{}, maxConcurrency)

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(index int, req *CompletionRequest) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := s.gateway.Complete(ctx, userID, whitelisted, req)
			items[index] = BatchItem{
				Index:   index,
				Request: req,
				Result:  result,
				Err:     err,
			}

			if err != nil {
				logger.Warn("batch item failed",
					zap.Int("index", index),
					zap.Error(err),
				)
			}
		}(i, req)
	}
	wg.Wait()

	succeeded := 0
	for i := range items {
		if items[i].Err == nil {
			succeeded++
		}
	}
	logger.Info("batch completed",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(items)-succeeded),
	)

	return items
}
