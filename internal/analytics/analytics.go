// Package analytics persists click events off the redirect path. Recording is
// a best-effort hand-off to a background worker: a full queue or a failing
// store drops the event with a log line and never fails the redirect. Click
// counting is analytics-grade, not billing-grade.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/db"
	"github.com/linkcut/linkcut/internal/types"
	"go.uber.org/zap"
)

// Recorder consumes click events from a buffered queue, appends them durably
// and periodically reconciles the cache's advisory counters with the durable
// counts.
type Recorder struct {
	storage db.ShortenerStorage
	cache   *cache.Layer
	logger  *zap.SugaredLogger
	timeout time.Duration

	queue chan types.ClickEvent
	done  chan struct{}
	stop  chan struct{}

	mu    sync.Mutex
	dirty map[string]struct{}
}

// NewRecorder starts the background worker and, when interval > 0, the
// counter reconciler.
func NewRecorder(storage db.ShortenerStorage, cacheLayer *cache.Layer, queueSize int, timeout, interval time.Duration, logger *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		storage: storage,
		cache:   cacheLayer,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan types.ClickEvent, queueSize),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		dirty:   make(map[string]struct{}),
	}

	go r.run()
	if interval > 0 {
		go r.reconcileLoop(interval)
	}
	return r
}

// Record hands a click event to the background worker without blocking. When
// the queue is full or the recorder has been closed the event is dropped and
// logged; lost click records are an accepted degradation.
func (r *Recorder) Record(ev types.ClickEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case <-r.stop:
		r.logger.Warnw("recorder stopped, dropping event", "code", ev.ShortCode)
	case r.queue <- ev:
	default:
		r.logger.Warnw("click queue full, dropping event", "code", ev.ShortCode)
	}
}

// Summary aggregates the click history of a code from the durable store.
// Repeated calls with no intervening clicks return identical aggregates.
func (r *Recorder) Summary(ctx context.Context, code string) (types.ClickSummary, error) {
	return r.storage.Summary(ctx, code)
}

// Close stops accepting events, drains the queue and shuts the reconciler
// down. Waits until the worker has persisted everything still queued. The
// queue channel is never closed, so a racing Record cannot panic; it is
// turned away by the stop channel instead.
func (r *Recorder) Close() {
	close(r.stop)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.persist(ev)
		case <-r.stop:
			// Drain what was queued before shutdown.
			for {
				select {
				case ev := <-r.queue:
					r.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(ev types.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	err := r.storage.AddClick(ctx, ev)
	cancel()
	if err != nil {
		// Dropped, not retried: the redirect already completed.
		r.logger.Warnw("failed to persist click", "code", ev.ShortCode, "error", err)
		return
	}
	r.markDirty(ev.ShortCode)
}

func (r *Recorder) reconcileLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stop:
			return
		}
	}
}

// reconcile overwrites the advisory fast counter of every code clicked since
// the previous pass with its durable count, so the cached value cannot drift
// unbounded.
func (r *Recorder) reconcile() {
	r.mu.Lock()
	codes := make([]string, 0, len(r.dirty))
	for code := range r.dirty {
		codes = append(codes, code)
	}
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	for _, code := range codes {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		n, err := r.storage.ClickCount(ctx, code)
		if err == nil {
			err = r.cache.ResetCounter(ctx, code, n)
		}
		cancel()
		if err != nil {
			r.logger.Warnw("counter reconciliation failed", "code", code, "error", err)
			// Try again on the next pass.
			r.markDirty(code)
		}
	}
}

func (r *Recorder) markDirty(code string) {
	r.mu.Lock()
	r.dirty[code] = struct{}{}
	r.mu.Unlock()
}
