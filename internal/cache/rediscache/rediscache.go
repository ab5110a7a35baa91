package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/redis/go-redis/v9"
)

const (
	urlKeyPrefix     = "url:"
	counterKeyPrefix = "clicks:"
)

// Store is the Redis-backed cache. Entries are JSON projections under
// "url:<key>"; fast counters live under "clicks:<code>".
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies connectivity.
func NewStore(cfg *config.Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Store{client: rdb}, nil
}

// Client exposes the underlying connection for subsystems sharing it, such as
// the Redis rate limiter.
func (s *Store) Client() *redis.Client {
	return s.client
}

// GetEntry retrieves a cached projection. A missing key maps to cache.ErrMiss.
func (s *Store) GetEntry(ctx context.Context, key string) (cache.Entry, error) {
	data, err := s.client.Get(ctx, urlKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

// SetEntry stores a projection with the given TTL.
func (s *Store) SetEntry(ctx context.Context, key string, e cache.Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, urlKeyPrefix+key, data, ttl).Err()
}

// Delete removes cached projections.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = urlKeyPrefix + k
	}
	return s.client.Del(ctx, prefixed...).Err()
}

// IncrCounter atomically bumps the fast click counter.
func (s *Store) IncrCounter(ctx context.Context, code string) (int64, error) {
	return s.client.Incr(ctx, counterKeyPrefix+code).Result()
}

// GetCounter reads the fast click counter; a missing key reads as zero.
func (s *Store) GetCounter(ctx context.Context, code string) (int64, error) {
	n, err := s.client.Get(ctx, counterKeyPrefix+code).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// SetCounter overwrites the fast click counter.
func (s *Store) SetCounter(ctx context.Context, code string, n int64) error {
	return s.client.Set(ctx, counterKeyPrefix+code, n, 0).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
