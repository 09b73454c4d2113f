package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/seatcheckout/internal/observability"
)

// RateLimiter is a fixed-window counter per key. Redis errors fail open.
type RateLimiter struct {
	client *redis.Client
	rate   int
	period time.Duration
}

func NewRateLimiter(client *redis.Client, rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{client: client, rate: rate, period: period}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	fullKey := "rl:" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rl.period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return true
	}

	if incr.Val() > int64(rl.rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
