package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in Redis so the quota holds across process
// restarts and replicas. INCR gives the atomic read-modify-write the
// limiter contract requires.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a counter store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// Incr atomically increments the counter for key and returns the new
// count. The key is set to expire at the day boundary on first use.
func (s *RedisStore) Incr(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}

	if count == 1 {
		if err := s.client.ExpireAt(ctx, key, expireAt).Err(); err != nil {
			return 0, fmt.Errorf("redis expireat failed: %w", err)
		}
	}

	return count, nil
}
