package main

import (
	"context"
	"net/http"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/analytics"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/cache/memcache"
	"github.com/linkcut/linkcut/internal/cache/rediscache"
	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/internal/db"
	"github.com/linkcut/linkcut/internal/handlers"
	"github.com/linkcut/linkcut/internal/ratelimit"
	"github.com/linkcut/linkcut/internal/shortcode"
	"github.com/linkcut/linkcut/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := config.GetConfig()

	logger := logging.GetSugaredLogger()
	if cfg.LogFile != "" {
		logger = logging.GetRotatingLogger(cfg.LogFile)
	}
	defer logger.Sync()

	ctx := context.Background()

	storage := db.GetStorage(cfg, logger)
	defer storage.Close(ctx)

	cacheStore, limiter := getCacheAndLimiter(cfg, logger)
	defer cacheStore.Close()

	layer := cache.NewLayer(cacheStore, storage, cfg.CacheTTL, cfg.StoreTimeout, clock.System{}, logger)

	recorder := analytics.NewRecorder(storage, layer, cfg.ClickQueueSize, cfg.StoreTimeout, cfg.ReconcileInterval, logger)
	defer recorder.Close()

	h := &handlers.Handler{
		Config:   cfg,
		Storage:  storage,
		Cache:    layer,
		Recorder: recorder,
		Generator: shortcode.Generator{
			Length:     cfg.CodeLength,
			MaxRetries: cfg.CodeMaxRetries,
		},
		Logger: logger,
	}

	err := http.ListenAndServe(cfg.ServerAddress, h.Router(limiter))
	logger.Fatalw("failed to start server", "error", err)
}

// getCacheAndLimiter selects the cache backend and builds the rate limiter on
// top of it. The Redis limiter shares the cache's connection so the sliding
// window holds across service instances; the in-process pair serves
// single-node runs.
func getCacheAndLimiter(cfg *config.Config, logger *zap.SugaredLogger) (cache.Store, ratelimit.Guarded) {
	if cfg.CacheType == "redis" {
		logger.Debug("using redis cache")
		store, err := rediscache.NewStore(cfg)
		if err != nil {
			logger.Fatalw("failed to initialize redis cache", "error", err)
		}
		limiter := ratelimit.NewRedisLimiter(store.Client(), cfg.RateLimitMax, cfg.RateLimitWindow)
		return store, ratelimit.Guarded{Limiter: limiter, Policy: cfg.RateLimitPolicy, Logger: logger}
	}

	logger.Debug("using in-process cache")
	store, err := memcache.NewStore(cfg.CacheTTL)
	if err != nil {
		logger.Fatalw("failed to initialize memory cache", "error", err)
	}
	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, clock.System{})
	return store, ratelimit.Guarded{Limiter: limiter, Policy: cfg.RateLimitPolicy, Logger: logger}
}
