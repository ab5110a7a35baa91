// Package ratelimit implements per-client sliding-window admission control.
// The check-and-record step is a single atomic operation against the backing
// store: a mutex-guarded log in process, or one Lua script round-trip on
// Redis. A read-count-then-write sequence from the caller would let two
// concurrent requests both claim the last remaining slot.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Result is the admission decision for one request.
type Result struct {
	Allowed bool
	// RetryAfter is how long until the oldest retained timestamp leaves the
	// window, i.e. when the next request could be admitted. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter admits or denies a request for the given client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Failure policies for an unreachable limiter backend.
const (
	PolicyClosed = "closed" // deny requests, safer for abuse protection
	PolicyOpen   = "open"   // admit requests, preserves availability
)

// Guarded wraps a Limiter with the configured backend-failure policy so
// callers never see limiter errors, only decisions.
type Guarded struct {
	Limiter Limiter
	Policy  string
	Logger  *zap.SugaredLogger
}

// Allow applies the failure policy when the underlying limiter errors.
func (g Guarded) Allow(ctx context.Context, key string) Result {
	res, err := g.Limiter.Allow(ctx, key)
	if err == nil {
		return res
	}
	if g.Policy == PolicyOpen {
		g.Logger.Warnw("rate limiter unavailable, failing open", "key", key, "error", err)
		return Result{Allowed: true}
	}
	g.Logger.Warnw("rate limiter unavailable, failing closed", "key", key, "error", err)
	return Result{Allowed: false, RetryAfter: time.Second}
}
