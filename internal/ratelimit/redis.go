package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter backs the fixed window with a shared TTL'd counter so every
// instance sees the same count for a key.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, keyID string, limit int) (Result, error) {
	key := "ratelimit:" + keyID

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("increment rate counter: %w", err)
	}

	// First hit anchors the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set rate window: %w", err)
		}
	}

	if count > int64(limit) {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = Window
		}
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}

	return Result{Allowed: true, Remaining: limit - int(count)}, nil
}
