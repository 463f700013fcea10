package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in a process-local map. Counters are lost on
// restart and not shared across instances; use RedisLimiter for multi-instance
// deployments.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	window  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		window:  Window,
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, keyID string, limit int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[keyID]
	if !ok || !now.Before(w.resetAt) {
		l.windows[keyID] = &window{count: 1, resetAt: now.Add(l.window)}
		return Result{Allowed: true, Remaining: limit - 1}, nil
	}

	if w.count >= limit {
		return Result{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: limit - w.count}, nil
}

func (l *MemoryLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		l.mu.Lock()
		now := l.now()
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.mu.Unlock()
	}
}
