package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "ab:rl:"

var ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")

// RedisLimiter implements the fixed window with INCR and a PEXPIRE on the
// first hit, so all instances share one bucket per key.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisLimiter(rdb redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix}
}

func (r *RedisLimiter) CanSend(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 || window <= 0 {
		return false, ErrInvalidPolicy
	}
	k := r.prefix + key

	count, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := r.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	} else if ttl, err := r.rdb.PTTL(ctx, k).Result(); err == nil && ttl < 0 {
		// A previous PEXPIRE was lost; restart the window rather than
		// blocking the key forever.
		if err := r.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(max), nil
}

func (r *RedisLimiter) failureKey(key string) string {
	return r.prefix + "fail:" + key
}

// RecordFailure is INCR with a PEXPIRE on the first failure, so the count
// rolls off window after it started.
func (r *RedisLimiter) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ErrInvalidPolicy
	}
	k := r.failureKey(key)

	count, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := r.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return int(count), nil
}

func (r *RedisLimiter) Failures(ctx context.Context, key string) (int, error) {
	n, err := r.rdb.Get(ctx, r.failureKey(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

func (r *RedisLimiter) ResetFailures(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.failureKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
