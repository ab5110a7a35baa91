package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linkcut/linkcut/internal/middleware"
	"github.com/linkcut/linkcut/internal/ratelimit"
)

// Router wires every route through the middleware conveyor. The rate limiter
// is the outermost wrapper on redirect and mutating routes so denied requests
// are rejected before any other core logic runs.
func (h *Handler) Router(limiter ratelimit.Guarded) chi.Router {
	r := chi.NewRouter()

	wrap := func(fn http.HandlerFunc, mws ...middleware.Middleware) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			middleware.Conveyor(fn, h.Logger, mws...).ServeHTTP(w, req)
		}
	}

	r.Post(`/api/shorten`, wrap(h.Shorten,
		middleware.WithLogging,
		middleware.WriteWithCompression,
		middleware.RateLimit(limiter, "create"),
	))
	r.Put(`/api/urls/{code}`, wrap(h.Update,
		middleware.WithLogging,
		middleware.WriteWithCompression,
		middleware.RateLimit(limiter, "mutate"),
	))
	r.Delete(`/api/urls/{code}`, wrap(h.Delete,
		middleware.WithLogging,
		middleware.RateLimit(limiter, "mutate"),
	))
	r.Get(`/api/urls/{code}/analytics`, wrap(h.Analytics,
		middleware.WithLogging,
		middleware.WriteWithCompression,
	))
	r.Get(`/api/urls/{code}/clicks`, wrap(h.Clicks,
		middleware.WithLogging,
	))
	r.Get(`/ping`, wrap(h.Ping,
		middleware.WithLogging,
	))
	r.Get(`/{code}`, wrap(h.Redirect,
		middleware.WithLogging,
		middleware.RateLimit(limiter, "redirect"),
	))

	return r
}
