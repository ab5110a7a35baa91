package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/logging"
)

func TestMemoryLimiter_ExactLimit(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(5, 10*time.Second, clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client1")
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := l.Allow(ctx, "client1")
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if res.Allowed {
		t.Fatal("6th request within the window should be denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 10*time.Second {
		t.Errorf("retry_after %v outside (0, window]", res.RetryAfter)
	}
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(2, 10*time.Second, clk)
	ctx := context.Background()

	l.Allow(ctx, "c")
	clk.Advance(4 * time.Second)
	l.Allow(ctx, "c")

	if res, _ := l.Allow(ctx, "c"); res.Allowed {
		t.Fatal("3rd request should be denied")
	}

	// After the first timestamp leaves the window, one slot frees up.
	clk.Advance(7 * time.Second)
	res, _ := l.Allow(ctx, "c")
	if !res.Allowed {
		t.Fatal("request should be admitted once the oldest timestamp expired")
	}
	if res, _ := l.Allow(ctx, "c"); res.Allowed {
		t.Fatal("window still holds two timestamps, request should be denied")
	}
}

func TestMemoryLimiter_RetryAfterMatchesOldest(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(1, 10*time.Second, clk)
	ctx := context.Background()

	l.Allow(ctx, "c")
	clk.Advance(3 * time.Second)

	res, _ := l.Allow(ctx, "c")
	if res.Allowed {
		t.Fatal("request should be denied")
	}
	if res.RetryAfter != 7*time.Second {
		t.Errorf("expected retry_after 7s, got %v", res.RetryAfter)
	}
}

func TestMemoryLimiter_PerKeyIsolation(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(1, 10*time.Second, clk)
	ctx := context.Background()

	l.Allow(ctx, "a")
	res, _ := l.Allow(ctx, "b")
	if !res.Allowed {
		t.Fatal("key b should not be affected by key a's usage")
	}
}

func TestMemoryLimiter_ConcurrentSingleSlot(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(10, time.Minute, clk)
	ctx := context.Background()

	// 50 concurrent requests race for 10 slots; exactly 10 may win.
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "hot")
			if err == nil && res.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("expected exactly 10 admitted requests, got %d", allowed)
	}
}

func TestMemoryLimiter_IdleKeysSwept(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewMemoryLimiter(5, 10*time.Second, clk)
	ctx := context.Background()

	l.Allow(ctx, "idle")
	clk.Advance(25 * time.Second)
	// Any request triggers the sweep once per window.
	l.Allow(ctx, "other")

	l.mu.Lock()
	_, exists := l.events["idle"]
	l.mu.Unlock()
	if exists {
		t.Error("expected idle key to be swept after a full inactive window")
	}
}

// failingLimiter simulates an unreachable backend.
type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("backend unreachable")
}

func TestGuarded_FailurePolicy(t *testing.T) {
	logger := logging.GetSugaredLogger()

	closed := Guarded{Limiter: failingLimiter{}, Policy: PolicyClosed, Logger: logger}
	if res := closed.Allow(context.Background(), "c"); res.Allowed {
		t.Error("fail-closed policy must deny when the backend is down")
	}

	open := Guarded{Limiter: failingLimiter{}, Policy: PolicyOpen, Logger: logger}
	if res := open.Allow(context.Background(), "c"); !res.Allowed {
		t.Error("fail-open policy must admit when the backend is down")
	}
}
