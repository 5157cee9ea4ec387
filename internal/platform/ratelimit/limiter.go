// Package ratelimit implements a fixed-window rate limiter for sensitive
// operations (login attempts, consent resolution, exports). Counters live in
// process memory keyed by (action category, client identity); this is correct
// for a single process and intentionally not shared across instances; a
// distributed deployment would swap the map for a counter store with atomic
// increment-and-TTL while keeping the same contract.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limit describes the budget for one action category.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Result is the outcome of a single Check call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in discrete, non-overlapping windows.
// A window opens on the first request for a key and resets once now passes
// resetAt. Fixed windows accept the standard boundary-burst inaccuracy in
// exchange for O(1) state per key.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check records one attempt for key and reports whether it is within limit.
// The increment-or-initialize is done under the lock, so concurrent requests
// for the same key never lose counts.
func (l *Limiter) Check(key string, limit Limit) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(limit.Window)}
		return Result{Allowed: true, Remaining: limit.MaxAttempts - 1}
	}

	w.count++
	if w.count > limit.MaxAttempts {
		return Result{Allowed: false, Remaining: 0, RetryAfter: w.resetAt.Sub(now)}
	}
	return Result{Allowed: true, Remaining: limit.MaxAttempts - w.count}
}

// Clear drops the window for key. Called after a successful authentication so
// a user is un-penalized immediately instead of waiting out the window.
func (l *Limiter) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Sweep removes expired windows and returns how many were pruned.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			pruned++
		}
	}
	return pruned
}

// StartSweeper prunes expired windows every interval until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Key builds the limiter key for an action category and a client identity
// (user id when authenticated, remote IP otherwise).
func Key(category, identity string) string {
	return category + ":" + identity
}
