package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/analytics"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/db"
	"github.com/linkcut/linkcut/internal/middleware"
	"github.com/linkcut/linkcut/internal/shortcode"
	"github.com/linkcut/linkcut/internal/types"
	"go.uber.org/zap"
)

// defaultExpirationDays applies when a shorten request does not set
// expiration_days.
const defaultExpirationDays = 30

// Handler serves the URL shortening API. Reads go through the cache layer,
// writes go to the durable store first and invalidate the cache afterwards.
type Handler struct {
	Config    *config.Config
	Storage   db.ShortenerStorage
	Cache     *cache.Layer
	Recorder  *analytics.Recorder
	Generator shortcode.Generator
	Logger    *zap.SugaredLogger
}

// Shorten handles POST /api/shorten. Custom aliases bypass generation but go
// through the same uniqueness check; generated codes are retried on insert
// conflicts because the store's unique index, not the generation-time check,
// is the final arbiter.
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req types.ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !shortcode.ValidateURL(req.URL) {
		http.Error(w, "invalid URL provided", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	link := types.ShortLink{
		OriginalURL: req.URL,
		IsActive:    true,
	}

	days := defaultExpirationDays
	if req.ExpirationDays != nil {
		days = *req.ExpirationDays
	}
	exp := time.Now().AddDate(0, 0, days)
	link.ExpiresAt = &exp

	if req.CustomAlias != "" {
		if err := h.Generator.CheckAlias(ctx, h.Storage, req.CustomAlias); err != nil {
			if errors.Is(err, shortcode.ErrAliasTaken) {
				http.Error(w, "custom alias already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		link.ShortCode = req.CustomAlias
		link.CustomAlias = req.CustomAlias

		stored, err := h.Storage.Insert(ctx, link)
		if err != nil {
			if errors.Is(err, types.ErrConflict) {
				// Lost the race for the alias between check and insert.
				http.Error(w, "custom alias already exists", http.StatusConflict)
				return
			}
			h.storeError(w, err)
			return
		}
		h.respondCreated(ctx, w, stored)
		return
	}

	for attempt := 0; attempt < h.Generator.MaxRetries; attempt++ {
		code, err := h.Generator.Generate(ctx, h.Storage)
		if err != nil {
			if errors.Is(err, shortcode.ErrGenerationExhausted) {
				http.Error(w, "short code space exhausted, retry later", http.StatusServiceUnavailable)
				return
			}
			h.storeError(w, err)
			return
		}
		link.ShortCode = code

		stored, err := h.Storage.Insert(ctx, link)
		if err == nil {
			h.respondCreated(ctx, w, stored)
			return
		}
		if !errors.Is(err, types.ErrConflict) {
			h.storeError(w, err)
			return
		}
		// Collision slipped past the existence check; regenerate.
	}
	http.Error(w, "short code space exhausted, retry later", http.StatusServiceUnavailable)
}

// Redirect handles GET /{code}. The response only depends on the cached
// projection and the fast counter; durable click persistence happens in the
// background and can never fail the redirect.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx := r.Context()

	entry, err := h.Cache.Resolve(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			http.Error(w, "short URL not found", http.StatusNotFound)
		case errors.Is(err, cache.ErrInactive):
			http.Error(w, "short URL has been deactivated", http.StatusGone)
		case errors.Is(err, cache.ErrExpired):
			http.Error(w, "short URL has expired", http.StatusGone)
		default:
			h.storeError(w, err)
		}
		return
	}

	h.Cache.IncrementCounter(ctx, entry.ShortCode)
	h.Recorder.Record(types.ClickEvent{
		ShortCode:  entry.ShortCode,
		Timestamp:  time.Now(),
		ClientAddr: middleware.ClientAddr(r),
		UserAgent:  r.Header.Get("User-Agent"),
		Referrer:   r.Header.Get("Referer"),
	})

	w.Header().Set("Location", entry.OriginalURL)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// Update handles PUT /api/urls/{code}. The cache is invalidated only after
// the durable update commits so no reader can repopulate it with stale data
// that outlives the invalidation.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx := r.Context()

	var upd types.LinkUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if upd.CustomAlias != nil && !shortcode.ValidAlias(*upd.CustomAlias) {
		http.Error(w, "invalid custom alias", http.StatusBadRequest)
		return
	}

	// Old alias is needed to invalidate its cache key as well.
	prev, err := h.Storage.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, "short URL not found", http.StatusNotFound)
			return
		}
		h.storeError(w, err)
		return
	}

	// The custom_alias unique index cannot see the short_code column, so a
	// cross-column collision is checked here; the index remains the
	// per-column backstop.
	if upd.CustomAlias != nil && *upd.CustomAlias != prev.ShortCode && *upd.CustomAlias != prev.CustomAlias {
		inUse, err := h.Storage.CodeInUse(ctx, *upd.CustomAlias)
		if err != nil {
			h.storeError(w, err)
			return
		}
		if inUse {
			http.Error(w, "custom alias already exists", http.StatusConflict)
			return
		}
	}

	link, err := h.Storage.Update(ctx, prev.ShortCode, upd)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			http.Error(w, "custom alias already exists", http.StatusConflict)
			return
		}
		h.storeError(w, err)
		return
	}

	keys := []string{prev.ShortCode}
	if prev.CustomAlias != "" {
		keys = append(keys, prev.CustomAlias)
	}
	if link.CustomAlias != "" && link.CustomAlias != prev.CustomAlias {
		keys = append(keys, link.CustomAlias)
	}
	h.Cache.Invalidate(ctx, keys...)

	h.writeJSON(w, http.StatusOK, h.response(link))
}

// Delete handles DELETE /api/urls/{code}. Links are soft-deleted so the click
// history stays queryable and codes are never reused.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx := r.Context()

	prev, err := h.Storage.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, "short URL not found", http.StatusNotFound)
			return
		}
		h.storeError(w, err)
		return
	}

	if err = h.Storage.Deactivate(ctx, prev.ShortCode); err != nil {
		h.storeError(w, err)
		return
	}

	keys := []string{prev.ShortCode}
	if prev.CustomAlias != "" {
		keys = append(keys, prev.CustomAlias)
	}
	h.Cache.Invalidate(ctx, keys...)

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "URL deleted successfully"})
}

// Analytics handles GET /api/urls/{code}/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	s, err := h.Recorder.Summary(r.Context(), code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, "short URL not found", http.StatusNotFound)
			return
		}
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// Clicks handles GET /api/urls/{code}/clicks, the low-latency advisory click
// count served from the cache's fast counter. The counter is keyed by the
// immutable short code, so aliases are resolved to it first.
func (h *Handler) Clicks(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx := r.Context()

	canonical, err := h.Cache.Canonical(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, "short URL not found", http.StatusNotFound)
			return
		}
		h.storeError(w, err)
		return
	}

	n, err := h.Cache.FastCount(ctx, canonical)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"clicks": n})
}

// Ping handles GET /ping, the durable store health probe.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.Storage.Ping(r.Context()); err != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) respondCreated(ctx context.Context, w http.ResponseWriter, link types.ShortLink) {
	// Populate the cache eagerly once the durable insert has committed, so a
	// hot new link does not pay a cold miss.
	h.Cache.PutOnCreate(ctx, link)
	h.writeJSON(w, http.StatusCreated, h.response(link))
}

func (h *Handler) response(link types.ShortLink) types.ShortenResponse {
	return types.ShortenResponse{
		ShortURL:    h.Config.BaseURL + "/" + link.ShortCode,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CustomAlias: link.CustomAlias,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		Clicks:      link.Clicks,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Errorw("failed to encode response", "error", err)
	}
}

// storeError maps unexpected durable-store failures. Mutating operations are
// fatal when the store is down; cached reads degrade before reaching here.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	h.Logger.Errorw("durable store failure", "error", err)
	http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
}
