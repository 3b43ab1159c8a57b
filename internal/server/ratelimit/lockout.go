package ratelimit

import (
	"context"
	"time"
)

// Default lockout: 10 failures within an hour lock the key until that hour
// has passed.
const (
	DefaultLockoutThreshold = 10
	DefaultLockoutDuration  = time.Hour
)

// FailureStore counts failures per key. Both backends implement it.
type FailureStore interface {
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Failures(ctx context.Context, key string) (int, error)
	ResetFailures(ctx context.Context, key string) error
}

// Lockout refuses a key once Threshold failures were recorded for it. The
// failure count starts a Duration-long window on the first failure, so the
// lock lifts by itself when that window ends. A success resets the count.
type Lockout struct {
	store     FailureStore
	threshold int
	duration  time.Duration
}

// NewLockout applies the defaults to non-positive threshold or duration.
func NewLockout(store FailureStore, threshold int, duration time.Duration) *Lockout {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &Lockout{store: store, threshold: threshold, duration: duration}
}

// Locked reports whether key has reached the threshold.
func (l *Lockout) Locked(ctx context.Context, key string) (bool, error) {
	n, err := l.store.Failures(ctx, key)
	if err != nil {
		return false, err
	}
	return n >= l.threshold, nil
}

// Fail records a failure and reports whether key is now locked.
func (l *Lockout) Fail(ctx context.Context, key string) (bool, error) {
	n, err := l.store.RecordFailure(ctx, key, l.duration)
	if err != nil {
		return false, err
	}
	return n >= l.threshold, nil
}

func (l *Lockout) Reset(ctx context.Context, key string) error {
	return l.store.ResetFailures(ctx, key)
}
