package memcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/allegro/bigcache"
	"github.com/linkcut/linkcut/internal/cache"
)

// Store is an in-process cache built on BigCache, for single-node runs and
// tests. BigCache expires entries through its global LifeWindow, so the
// per-call TTL is accepted for interface compatibility but not applied
// per key.
type Store struct {
	entries *bigcache.BigCache

	mu       sync.Mutex
	counters map[string]int64
}

// NewStore initializes a BigCache-backed store whose LifeWindow equals ttl.
func NewStore(ttl time.Duration) (*Store, error) {
	bc, err := bigcache.NewBigCache(bigcache.Config{
		Shards:           256,
		LifeWindow:       ttl,
		CleanWindow:      time.Minute,
		MaxEntrySize:     512,
		HardMaxCacheSize: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		entries:  bc,
		counters: make(map[string]int64),
	}, nil
}

// GetEntry retrieves a cached projection. A missing key maps to cache.ErrMiss.
func (s *Store) GetEntry(_ context.Context, key string) (cache.Entry, error) {
	data, err := s.entries.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return cache.Entry{}, cache.ErrMiss
		}
		return cache.Entry{}, err
	}
	var e cache.Entry
	if err = json.Unmarshal(data, &e); err != nil {
		return cache.Entry{}, err
	}
	return e, nil
}

// SetEntry stores a projection. The ttl argument is ignored, see Store.
func (s *Store) SetEntry(_ context.Context, key string, e cache.Entry, _ time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.entries.Set(key, data)
}

// Delete removes cached projections. BigCache returns an error for absent
// keys; deleting an absent key is not a failure here.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if err := s.entries.Delete(k); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// IncrCounter atomically bumps the fast click counter.
func (s *Store) IncrCounter(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[code]++
	return s.counters[code], nil
}

// GetCounter reads the fast click counter; a missing key reads as zero.
func (s *Store) GetCounter(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[code], nil
}

// SetCounter overwrites the fast click counter.
func (s *Store) SetCounter(_ context.Context, code string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[code] = n
	return nil
}

// Close releases the BigCache resources.
func (s *Store) Close() error {
	return s.entries.Close()
}
