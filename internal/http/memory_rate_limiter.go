package httpx

import (
	"sync"
	"time"
)

// sweepEvery bounds how often expired windows are dropped.
const sweepEvery = time.Minute

type window struct {
	hits    int
	resetAt time.Time
}

type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryRateLimiter returns a process-local limiter. Expired windows
// are swept lazily on Allow, so no goroutine is started.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{windows: make(map[string]*window), now: now}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, period time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if period <= 0 {
		period = time.Minute
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweep(now)

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		rl.windows[key] = w
	}
	if w.hits >= limit {
		return rateDecision{count: w.hits, windowEnd: w.resetAt}
	}
	w.hits++
	return rateDecision{allowed: true, count: w.hits, windowEnd: w.resetAt}
}

func (rl *memoryRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < sweepEvery {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {}
