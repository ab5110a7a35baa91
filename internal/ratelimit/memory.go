package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/linkcut/linkcut/internal/clock"
)

// MemoryLimiter keeps a sliding-window log of request timestamps per client
// key. A single mutex makes prune-count-record atomic relative to concurrent
// requests for the same key. Keys idle for a full window are swept so storage
// stays bounded.
type MemoryLimiter struct {
	window time.Duration
	limit  int
	clk    clock.Clock

	mu        sync.Mutex
	events    map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter builds an in-process sliding-window limiter allowing limit
// requests per window.
func NewMemoryLimiter(limit int, window time.Duration, clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		limit:  limit,
		clk:    clk,
		events: make(map[string][]time.Time),
	}
}

// Allow prunes timestamps older than the window, counts the remainder and
// either records the request or denies it with the time until the oldest
// retained timestamp exits the window.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	cutoff := now.Add(-m.window)
	m.sweepLocked(now, cutoff)

	log := m.events[key]
	valid := 0
	for valid < len(log) && !log[valid].After(cutoff) {
		valid++
	}
	log = log[valid:]

	if len(log) >= m.limit {
		m.events[key] = log
		retry := log[0].Add(m.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}

	m.events[key] = append(log, now)
	return Result{Allowed: true}, nil
}

// sweepLocked drops keys with no activity inside the window. Runs at most
// once per window to keep Allow cheap.
func (m *MemoryLimiter) sweepLocked(now time.Time, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for key, log := range m.events {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(m.events, key)
		}
	}
}
