// Package ratelimit enforces the per-user daily request quota. The day
// boundary is a calendar date in a fixed configured time zone, not a
// rolling 24-hour window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
)

// Store is the atomic per-key increment contract. Incr returns the count
// after incrementing; expireAt tells the store when the key stops
// mattering so it can be reclaimed.
type Store interface {
	Incr(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

// Config contains limiter settings.
type Config struct {
	DailyLimit int
	Whitelist  []string
	Location   *time.Location
}

// DailyLimiter implements domain.RateLimiter keyed by (user, calendar day).
type DailyLimiter struct {
	store     Store
	limit     int
	whitelist map[string]struct{}
	loc       *time.Location
	now       func() time.Time
}

// NewDailyLimiter creates a limiter backed by the given store.
func NewDailyLimiter(store Store, cfg Config) *DailyLimiter {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		whitelist[id] = struct{}{}
	}

	return &DailyLimiter{
		store:     store,
		limit:     cfg.DailyLimit,
		whitelist: whitelist,
		loc:       loc,
		now:       time.Now,
	}
}

// CheckAndIncrement admits or denies a request for userID. Whitelisted
// identities are admitted without touching the stored count. For
// everyone else the store's increment is the admission decision: the
// count may run past the limit on denied probes, admissions never do.
func (l *DailyLimiter) CheckAndIncrement(
	ctx context.Context,
	userID string,
	whitelisted bool,
) (domain.Decision, error) {
	if _, ok := l.whitelist[userID]; ok {
		whitelisted = true
	}

	if whitelisted {
		observability.FromContext(ctx).Debug("user is whitelisted, skipping rate limit check",
			zap.String("user_id", userID))
		return domain.Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
	}

	now := l.now().In(l.loc)
	resetAt := nextMidnight(now)
	key := fmt.Sprintf("llmgate:requests:%s:%s", userID, now.Format("2006-01-02"))

	count, err := l.store.Incr(ctx, key, resetAt)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("failed to increment request count: %w", err)
	}

	if count > int64(l.limit) {
		return domain.Decision{
			Allowed: false,
			Limit:   l.limit,
			ResetAt: resetAt,
		}, nil
	}

	remaining := l.limit - int(count)
	return domain.Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: remaining,
	}, nil
}

// nextMidnight returns the start of the next calendar day in now's location.
func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
