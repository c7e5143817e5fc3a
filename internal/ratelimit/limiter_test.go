package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLimiter(limit int, whitelist []string, now time.Time) (*DailyLimiter, *MemoryStore) {
	store := NewMemoryStore()
	store.now = fixedClock(now)

	limiter := NewDailyLimiter(store, Config{
		DailyLimit: limit,
		Whitelist:  whitelist,
		Location:   time.UTC,
	})
	limiter.now = fixedClock(now)

	return limiter, store
}

func TestDailyLimiter_CheckAndIncrement(t *testing.T) {
	ctx := context.Background()
	noon := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("should admit exactly the daily limit", func(t *testing.T) {
		limiter, _ := newTestLimiter(3, nil, noon)

		for i := 0; i < 3; i++ {
			decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
			require.NoError(t, err)
			require.True(t, decision.Allowed)
			require.Equal(t, 3-(i+1), decision.Remaining)
		}

		decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, 3, decision.Limit)
	})

	t.Run("should report next midnight as reset time", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, nil, noon)

		_, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)

		decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), decision.ResetAt)
	})

	t.Run("should track users independently", func(t *testing.T) {
		limiter, _ := newTestLimiter(1, nil, noon)

		first, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.True(t, first.Allowed)

		second, err := limiter.CheckAndIncrement(ctx, "user-2", false)
		require.NoError(t, err)
		require.True(t, second.Allowed)
	})

	t.Run("should reset at the day boundary", func(t *testing.T) {
		limiter, store := newTestLimiter(1, nil, noon)

		_, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)

		denied, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.False(t, denied.Allowed)

		nextDay := noon.AddDate(0, 0, 1)
		limiter.now = fixedClock(nextDay)
		store.now = fixedClock(nextDay)

		decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	})

	t.Run("should never deny whitelisted users", func(t *testing.T) {
		limiter, store := newTestLimiter(1, []string{"vip"}, noon)

		for i := 0; i < 10; i++ {
			decision, err := limiter.CheckAndIncrement(ctx, "vip", false)
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}

		// Whitelisted requests never touch the counter.
		require.Zero(t, store.Len())
	})

	t.Run("should honor caller-asserted whitelist flag", func(t *testing.T) {
		limiter, store := newTestLimiter(1, nil, noon)

		for i := 0; i < 5; i++ {
			decision, err := limiter.CheckAndIncrement(ctx, "user-1", true)
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}
		require.Zero(t, store.Len())
	})

	t.Run("should admit at most limit under concurrency", func(t *testing.T) {
		limiter, _ := newTestLimiter(50, nil, noon)

		var allowed int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
				if err == nil && decision.Allowed {
					atomic.AddInt64(&allowed, 1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int64(50), atomic.LoadInt64(&allowed))
	})

	t.Run("should propagate store failures", func(t *testing.T) {
		limiter := NewDailyLimiter(failingStore{}, Config{
			DailyLimit: 5,
			Whitelist:  nil,
			Location:   time.UTC,
		})

		_, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to increment request count")
	})

	t.Run("should compute the day in the configured zone", func(t *testing.T) {
		tokyo, err := time.LoadLocation("Asia/Tokyo")
		require.NoError(t, err)

		// 23:30 UTC on June 15 is already June 16 in Tokyo.
		lateUTC := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)

		store := NewMemoryStore()
		store.now = fixedClock(lateUTC)
		limiter := NewDailyLimiter(store, Config{
			DailyLimit: 1,
			Whitelist:  nil,
			Location:   tokyo,
		})
		limiter.now = fixedClock(lateUTC)

		_, err = limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)

		decision, err := limiter.CheckAndIncrement(ctx, "user-1", false)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, time.Date(2025, 6, 17, 0, 0, 0, 0, tokyo), decision.ResetAt)
	})
}

func TestMemoryStore_Incr(t *testing.T) {
	ctx := context.Background()

	t.Run("should count per key", func(t *testing.T) {
		store := NewMemoryStore()
		expire := time.Now().Add(time.Hour)

		for want := int64(1); want <= 3; want++ {
			count, err := store.Incr(ctx, "a", expire)
			require.NoError(t, err)
			require.Equal(t, want, count)
		}

		count, err := store.Incr(ctx, "b", expire)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("should drop expired counters", func(t *testing.T) {
		store := NewMemoryStore()
		base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		store.now = fixedClock(base)

		_, err := store.Incr(ctx, "old", base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, store.Len())

		store.now = fixedClock(base.Add(2 * time.Hour))
		count, err := store.Incr(ctx, "fresh", base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
		require.Equal(t, 1, store.Len())
	})
}

type failingStore struct{}

func (failingStore) Incr(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, errors.New("store offline")
}
