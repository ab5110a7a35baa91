// Package cache implements the cache-aside layer in front of the durable
// store. The cache is a performance projection, never a source of truth: every
// operation falls back to the durable store when the cache is unavailable, and
// invalidation strictly follows the durable write it invalidates.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/internal/db"
	"github.com/linkcut/linkcut/internal/types"
	"go.uber.org/zap"
)

// ErrMiss is returned by a Store when the key is absent or past its TTL.
var ErrMiss = errors.New("cache miss")

// ErrInactive is returned by Resolve for soft-deleted links. Reported
// distinctly from a missing link so callers can show a meaningful message.
var ErrInactive = errors.New("link has been deactivated")

// ErrExpired is returned by Resolve for links past their expiration.
var ErrExpired = errors.New("link has expired")

// Entry is the ephemeral cached projection of a ShortLink.
type Entry struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Store is the volatile cache backend. No durability is assumed; every method
// may fail without affecting correctness. The fast click counter is advisory
// and reconciled against the durable count by the analytics recorder.
type Store interface {
	GetEntry(ctx context.Context, key string) (Entry, error)
	SetEntry(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrCounter(ctx context.Context, code string) (int64, error)
	GetCounter(ctx context.Context, code string) (int64, error)
	SetCounter(ctx context.Context, code string, n int64) error
	Close() error
}

// Layer ties the volatile Store to the durable storage with read-through and
// invalidate-on-write semantics.
type Layer struct {
	store   Store
	durable db.ShortenerStorage
	ttl     time.Duration
	timeout time.Duration
	clk     clock.Clock
	logger  *zap.SugaredLogger
}

// NewLayer builds the cache-aside layer. ttl bounds how long a projection may
// be served without consulting the durable store; timeout bounds every cache
// call so a slow cache degrades latency, not availability.
func NewLayer(store Store, durable db.ShortenerStorage, ttl, timeout time.Duration, clk clock.Clock, logger *zap.SugaredLogger) *Layer {
	return &Layer{
		store:   store,
		durable: durable,
		ttl:     ttl,
		timeout: timeout,
		clk:     clk,
		logger:  logger,
	}
}

// Resolve returns the projection for a short code or alias. Read-through: a
// cache miss loads from the durable store and repopulates the cache. Inactive
// and expired links yield ErrInactive and ErrExpired so redirects can report
// them distinctly from unknown codes.
func (l *Layer) Resolve(ctx context.Context, key string) (Entry, error) {
	e, err := l.getCached(ctx, key)
	if err != nil {
		link, err := l.durable.GetByCode(ctx, key)
		if err != nil {
			// types.ErrNotFound and store failures both propagate.
			return Entry{}, err
		}
		e = Entry{
			ShortCode:   link.ShortCode,
			OriginalURL: link.OriginalURL,
			IsActive:    link.IsActive,
			ExpiresAt:   link.ExpiresAt,
		}
		l.setCached(ctx, key, e)
	}

	if !e.IsActive {
		return Entry{}, ErrInactive
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(l.clk.Now()) {
		return Entry{}, ErrExpired
	}
	return e, nil
}

// Canonical resolves a code or alias to the record's immutable short code,
// regardless of the link's active or expiration state. The fast counter is
// keyed by the short code, so alias lookups must pass through here first.
func (l *Layer) Canonical(ctx context.Context, key string) (string, error) {
	if e, err := l.getCached(ctx, key); err == nil {
		return e.ShortCode, nil
	}
	link, err := l.durable.GetByCode(ctx, key)
	if err != nil {
		return "", err
	}
	l.setCached(ctx, key, Entry{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		IsActive:    link.IsActive,
		ExpiresAt:   link.ExpiresAt,
	})
	return link.ShortCode, nil
}

// PutOnCreate eagerly populates the cache after a durable insert commits,
// avoiding a cold miss on hot new links. Best effort.
func (l *Layer) PutOnCreate(ctx context.Context, link types.ShortLink) {
	e := Entry{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		IsActive:    link.IsActive,
		ExpiresAt:   link.ExpiresAt,
	}
	l.setCached(ctx, link.ShortCode, e)
	if link.CustomAlias != "" && link.CustomAlias != link.ShortCode {
		l.setCached(ctx, link.CustomAlias, e)
	}
}

// Invalidate drops cached projections. Callers must invoke it only after the
// durable write has committed, so a racing reader cannot repopulate the cache
// with pre-write data that outlives the invalidation.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.Delete(cctx, keys...); err != nil {
		l.logger.Warnw("cache invalidation failed", "keys", keys, "error", err)
	}
}

// IncrementCounter bumps the advisory fast click counter. Best effort; the
// durable count is the source of truth.
func (l *Layer) IncrementCounter(ctx context.Context, code string) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if _, err := l.store.IncrCounter(cctx, code); err != nil {
		l.logger.Warnw("fast counter increment failed", "code", code, "error", err)
	}
}

// FastCount returns the advisory counter value, falling back to the durable
// count when the cache cannot answer.
func (l *Layer) FastCount(ctx context.Context, code string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	n, err := l.store.GetCounter(cctx, code)
	if err == nil {
		return n, nil
	}
	l.logger.Debugw("fast counter unavailable, reading durable count", "code", code, "error", err)
	return l.durable.ClickCount(ctx, code)
}

// ResetCounter overwrites the advisory counter with the durable count. Called
// by the analytics reconciler.
func (l *Layer) ResetCounter(ctx context.Context, code string, n int64) error {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.SetCounter(cctx, code, n); err != nil {
		return fmt.Errorf("failed to reset counter for %s: %w", code, err)
	}
	return nil
}

func (l *Layer) getCached(ctx context.Context, key string) (Entry, error) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	e, err := l.store.GetEntry(cctx, key)
	if err != nil && !errors.Is(err, ErrMiss) {
		l.logger.Warnw("cache read failed, falling back to durable store", "key", key, "error", err)
	}
	return e, err
}

func (l *Layer) setCached(ctx context.Context, key string, e Entry) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.SetEntry(cctx, key, e, l.ttl); err != nil {
		l.logger.Warnw("cache write failed", "key", key, "error", err)
	}
}
