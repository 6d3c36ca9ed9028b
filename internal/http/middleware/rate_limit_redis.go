package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindowLimiter counts hits per key in a shared fixed window
// so the creation limit holds across instances. INCR plus a one-shot
// EXPIRE keeps the whole window in a single round trip.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := time.Now()
	window := now.UnixMilli() / policy.Window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	// NX so only the first hit of a window stamps the TTL. The window
	// number is already in the key, so second resolution is enough.
	pipe.ExpireNX(ctx, redisKey, policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	resetAt := time.UnixMilli((window + 1) * policy.Window.Milliseconds())
	n := int(count.Val())
	if n > policy.Limit {
		retryAfter := time.Until(resetAt)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter,
			Remaining:  0,
			ResetAt:    resetAt,
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: policy.Limit - n,
		ResetAt:   resetAt,
	}, nil
}
