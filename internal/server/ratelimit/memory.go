package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens  int
	resetAt time.Time
}

// MemoryLimiter keeps buckets in a map guarded by a mutex.
type MemoryLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	failures map[string]*bucket
	now      func() time.Time
}

// NewMemoryLimiter returns an empty limiter. now may be nil.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{buckets: make(map[string]*bucket), failures: make(map[string]*bucket), now: now}
}

func (m *MemoryLimiter) CanSend(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 || window <= 0 {
		return false, ErrInvalidPolicy
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{tokens: max, resetAt: now.Add(window)}
		m.buckets[key] = b
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// RecordFailure counts a failure for key. The count expires window after
// the first failure.
func (m *MemoryLimiter) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ErrInvalidPolicy
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.failures[key]
	if !ok || !now.Before(f.resetAt) {
		f = &bucket{resetAt: now.Add(window)}
		m.failures[key] = f
	}
	f.tokens++
	return f.tokens, nil
}

func (m *MemoryLimiter) Failures(_ context.Context, key string) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.failures[key]
	if !ok || !now.Before(f.resetAt) {
		return 0, nil
	}
	return f.tokens, nil
}

func (m *MemoryLimiter) ResetFailures(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.failures, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops buckets whose window has ended and returns how many it
// removed. Dropped buckets are recreated full on next use, so sweeping never
// changes an answer.
func (m *MemoryLimiter) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, set := range []map[string]*bucket{m.buckets, m.failures} {
		for k, b := range set {
			if !now.Before(b.resetAt) {
				delete(set, k)
				n++
			}
		}
	}
	return n
}

// Len is the number of live buckets and failure counters.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets) + len(m.failures)
}

// Run sweeps every interval until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
