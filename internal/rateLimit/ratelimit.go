package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/tour-checkout/internal/adapters/redis"
)

// RateLimiter is a fixed window counter per key.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	fullKey := "rl:" + key

	n, err := rl.redis.Client().Incr(ctx, fullKey).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := rl.redis.Client().Expire(ctx, fullKey, period).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(rate), nil
}
