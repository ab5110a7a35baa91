package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/cache/memcache"
	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/internal/db/memorystorage"
	"github.com/linkcut/linkcut/internal/types"
	"github.com/linkcut/linkcut/logging"
)

func setupLayer(t *testing.T) (*cache.Layer, *memorystorage.Manager, *memcache.Store) {
	t.Helper()
	store, err := memcache.NewStore(time.Hour)
	if err != nil {
		t.Fatalf("failed to create memcache store: %v", err)
	}
	durable, err := memorystorage.NewManager(&config.Config{})
	if err != nil {
		t.Fatalf("failed to create memory storage: %v", err)
	}
	layer := cache.NewLayer(store, durable, time.Hour, time.Second, clock.System{}, logging.GetSugaredLogger())
	return layer, durable, store
}

func insertLink(t *testing.T, durable *memorystorage.Manager, link types.ShortLink) types.ShortLink {
	t.Helper()
	stored, err := durable.Insert(context.Background(), link)
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	return stored
}

func TestResolve_ReadThrough(t *testing.T) {
	layer, durable, store := setupLayer(t)
	ctx := context.Background()

	insertLink(t, durable, types.ShortLink{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})

	// First resolve misses the cache and loads from the durable store.
	e, err := layer.Resolve(ctx, "abc123")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if e.OriginalURL != "https://example.com" {
		t.Errorf("expected original URL, got %q", e.OriginalURL)
	}

	// The miss must have repopulated the cache.
	if _, err := store.GetEntry(ctx, "abc123"); err != nil {
		t.Errorf("expected cache to be populated after read-through, got %v", err)
	}
}

func TestResolve_DistinctOutcomes(t *testing.T) {
	layer, durable, _ := setupLayer(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	insertLink(t, durable, types.ShortLink{
		ShortCode:   "gone",
		OriginalURL: "https://example.com/gone",
		IsActive:    false,
	})
	insertLink(t, durable, types.ShortLink{
		ShortCode:   "old",
		OriginalURL: "https://example.com/old",
		IsActive:    true,
		ExpiresAt:   &past,
	})

	if _, err := layer.Resolve(ctx, "gone"); !errors.Is(err, cache.ErrInactive) {
		t.Errorf("expected ErrInactive for deactivated link, got %v", err)
	}
	if _, err := layer.Resolve(ctx, "old"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired for expired link, got %v", err)
	}
	if _, err := layer.Resolve(ctx, "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestInvalidate_NoStaleRead(t *testing.T) {
	layer, durable, _ := setupLayer(t)
	ctx := context.Background()

	insertLink(t, durable, types.ShortLink{
		ShortCode:   "upd",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})

	// Warm the cache, then deactivate durably and invalidate afterwards,
	// matching the write ordering of the mutation path.
	if _, err := layer.Resolve(ctx, "upd"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if err := durable.Deactivate(ctx, "upd"); err != nil {
		t.Fatalf("Deactivate() error: %v", err)
	}
	layer.Invalidate(ctx, "upd")

	if _, err := layer.Resolve(ctx, "upd"); !errors.Is(err, cache.ErrInactive) {
		t.Errorf("expected ErrInactive after invalidation, got %v", err)
	}
}

func TestPutOnCreate_WarmsCache(t *testing.T) {
	layer, _, store := setupLayer(t)
	ctx := context.Background()

	layer.PutOnCreate(ctx, types.ShortLink{
		ShortCode:   "hot1",
		CustomAlias: "launch",
		OriginalURL: "https://example.com/hot",
		IsActive:    true,
	})

	for _, key := range []string{"hot1", "launch"} {
		if _, err := store.GetEntry(ctx, key); err != nil {
			t.Errorf("expected cache entry for %q after PutOnCreate, got %v", key, err)
		}
	}
}

func TestFastCounter(t *testing.T) {
	layer, durable, _ := setupLayer(t)
	ctx := context.Background()

	insertLink(t, durable, types.ShortLink{
		ShortCode:   "cnt",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})

	for i := 0; i < 3; i++ {
		layer.IncrementCounter(ctx, "cnt")
	}
	n, err := layer.FastCount(ctx, "cnt")
	if err != nil {
		t.Fatalf("FastCount() error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected fast count 3, got %d", n)
	}

	// Reconciliation overwrites the advisory value.
	if err := layer.ResetCounter(ctx, "cnt", 10); err != nil {
		t.Fatalf("ResetCounter() error: %v", err)
	}
	n, _ = layer.FastCount(ctx, "cnt")
	if n != 10 {
		t.Errorf("expected fast count 10 after reset, got %d", n)
	}
}

// brokenStore fails every operation, simulating a cache outage.
type brokenStore struct{}

var errDown = errors.New("cache down")

func (brokenStore) GetEntry(context.Context, string) (cache.Entry, error) { return cache.Entry{}, errDown }
func (brokenStore) SetEntry(context.Context, string, cache.Entry, time.Duration) error {
	return errDown
}
func (brokenStore) Delete(context.Context, ...string) error              { return errDown }
func (brokenStore) IncrCounter(context.Context, string) (int64, error)   { return 0, errDown }
func (brokenStore) GetCounter(context.Context, string) (int64, error)    { return 0, errDown }
func (brokenStore) SetCounter(context.Context, string, int64) error      { return errDown }
func (brokenStore) Close() error                                         { return nil }

func TestCacheOutage_FallsBackToDurable(t *testing.T) {
	durable, err := memorystorage.NewManager(&config.Config{})
	if err != nil {
		t.Fatalf("failed to create memory storage: %v", err)
	}
	layer := cache.NewLayer(brokenStore{}, durable, time.Hour, time.Second, clock.System{}, logging.GetSugaredLogger())
	ctx := context.Background()

	link, err := durable.Insert(ctx, types.ShortLink{
		ShortCode:   "live",
		OriginalURL: "https://example.com/live",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	// Lookups still succeed through the durable store.
	e, err := layer.Resolve(ctx, "live")
	if err != nil {
		t.Fatalf("Resolve() with broken cache error: %v", err)
	}
	if e.OriginalURL != link.OriginalURL {
		t.Errorf("expected %q, got %q", link.OriginalURL, e.OriginalURL)
	}

	// The advisory counter falls back to the durable count.
	if err := durable.AddClick(ctx, types.ClickEvent{ShortCode: "live", ClientAddr: "127.0.0.1"}); err != nil {
		t.Fatalf("AddClick() error: %v", err)
	}
	n, err := layer.FastCount(ctx, "live")
	if err != nil {
		t.Fatalf("FastCount() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected durable fallback count 1, got %d", n)
	}

	// Best-effort operations must not fail the caller.
	layer.IncrementCounter(ctx, "live")
	layer.Invalidate(ctx, "live")
	layer.PutOnCreate(ctx, link)
}
