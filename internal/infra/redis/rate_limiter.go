package redis

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	client RedisClient
	prefix string
}

func NewRateLimiter(client RedisClient, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &RateLimiter{client: client, prefix: prefix}
}

// Allow counts one hit for key and reports whether it is within limit for the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := r.prefix + ":" + key
	count, err := r.client.Incr(ctx, k)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
