package lockout

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for failure counters and lock flags.
const (
	failPrefix = "adminauth:fail:"
	lockPrefix = "adminauth:lock:"
)

// RedisLimiter keeps failure counters in Redis so lockouts hold across
// server instances.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a Redis-backed limiter reusing an existing
// client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Locked reports whether key is currently locked out.
func (l *RedisLimiter) Locked(ctx context.Context, key string) (bool, error) {
	_, err := l.client.Get(ctx, lockPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fail records a failed attempt and returns whether key is now locked.
func (l *RedisLimiter) Fail(ctx context.Context, key string) (bool, error) {
	failures, err := l.client.Incr(ctx, failPrefix+key).Result()
	if err != nil {
		return false, err
	}
	if failures == 1 {
		if errExpire := l.client.Expire(ctx, failPrefix+key, failureWindow).Err(); errExpire != nil {
			return false, errExpire
		}
	}
	if failures >= Threshold {
		ttl := durationFor(failures)
		if errSet := l.client.Set(ctx, lockPrefix+key, failures, ttl).Err(); errSet != nil {
			return false, errSet
		}
		return true, nil
	}
	return false, nil
}

// Reset clears the failure streak for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, failPrefix+key, lockPrefix+key).Err()
}

// Client exposes the underlying Redis client for sharing.
func (l *RedisLimiter) Client() *redis.Client { return l.client }
