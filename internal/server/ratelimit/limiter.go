// Package ratelimit guards OTP sends and PIN sign-ins with fixed-window
// buckets, and locks PIN sign-in out after repeated failures.
//
// A bucket is keyed by an abuse-prevention key ("email:...", "sms:...",
// "ip:..."). On first use, or once its window has elapsed, a bucket holds
// max tokens; each permitted call takes one. An exhausted bucket refuses
// without consuming anything until the window ends.
//
// MemoryLimiter is process-local and forgets everything on restart; in a
// multi-instance deployment every instance has its own buckets. RedisLimiter
// shares buckets across instances. Neither replaces the identity provider's
// own rate limits.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Default policy: 5 sends per 10 minutes per key.
const (
	DefaultMax    = 5
	DefaultWindow = 10 * time.Minute
)

var ErrInvalidPolicy = errors.New("ratelimit: max and window must be positive")

// Limiter is satisfied by both backends.
type Limiter interface {
	CanSend(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Policy is a max/window pair applied to every key.
type Policy struct {
	Max    int
	Window time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Max: DefaultMax, Window: DefaultWindow}
}

func (p Policy) valid() bool { return p.Max > 0 && p.Window > 0 }

// Allow checks every key against l with p and reports whether all of them
// permit a send. It stops at the first refusal, and keys checked before the
// refusing one keep their spent token. Callers list the broadest key (the
// client address) first, so a refused address never drains a per-user
// bucket.
func (p Policy) Allow(ctx context.Context, l Limiter, keys ...string) (bool, error) {
	if !p.valid() {
		return false, ErrInvalidPolicy
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		ok, err := l.CanSend(ctx, k, p.Max, p.Window)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
