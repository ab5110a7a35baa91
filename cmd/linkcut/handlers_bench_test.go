package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/analytics"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/cache/memcache"
	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/internal/db/memorystorage"
	"github.com/linkcut/linkcut/internal/handlers"
	"github.com/linkcut/linkcut/internal/ratelimit"
	"github.com/linkcut/linkcut/internal/shortcode"
	"github.com/linkcut/linkcut/internal/types"
	"github.com/linkcut/linkcut/logging"
)

func setupRouter(b *testing.B) (http.Handler, *memorystorage.Manager) {
	b.Helper()
	logger := logging.GetSugaredLogger()
	cfg := &config.Config{
		BaseURL:      "http://localhost:8080",
		StoreTimeout: time.Second,
	}

	storage, err := memorystorage.NewManager(cfg)
	if err != nil {
		b.Fatalf("failed to create memory storage: %v", err)
	}
	store, err := memcache.NewStore(time.Hour)
	if err != nil {
		b.Fatalf("failed to create memcache store: %v", err)
	}
	layer := cache.NewLayer(store, storage, time.Hour, time.Second, clock.System{}, logger)
	recorder := analytics.NewRecorder(storage, layer, 1024, time.Second, 0, logger)
	b.Cleanup(func() { recorder.Close() })

	h := &handlers.Handler{
		Config:    cfg,
		Storage:   storage,
		Cache:     layer,
		Recorder:  recorder,
		Generator: shortcode.Generator{Length: 6, MaxRetries: 5},
		Logger:    logger,
	}
	limiter := ratelimit.Guarded{
		Limiter: ratelimit.NewMemoryLimiter(1<<30, time.Hour, clock.System{}),
		Policy:  ratelimit.PolicyClosed,
		Logger:  logger,
	}
	return h.Router(limiter), storage
}

func BenchmarkShorten(b *testing.B) {
	router, _ := setupRouter(b)

	requestBody, _ := json.Marshal(types.ShortenRequest{URL: "https://example.com"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/shorten", bytes.NewReader(requestBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

func BenchmarkRedirect(b *testing.B) {
	router, storage := setupRouter(b)

	_, err := storage.Insert(context.Background(), types.ShortLink{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		CreatedAt:   time.Now(),
		IsActive:    true,
	})
	if err != nil {
		b.Fatalf("failed to seed link: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

func BenchmarkPing(b *testing.B) {
	router, _ := setupRouter(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
