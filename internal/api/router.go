// Package api assembles the HTTP surface: middleware, public and
// authenticated route groups, and the operational endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
	"github.com/joao-fontenele/catering-orders/internal/telemetry"
)

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// RouteFunc adapts a plain registration function, for handlers that expose
// more than one route set.
type RouteFunc func(r chi.Router)

func (f RouteFunc) RegisterRoutes(r chi.Router) { f(r) }

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Config struct {
	Logger *zap.Logger
	Tokens *auth.Tokens
	DB     Pinger

	// Public routes need no identity.
	Public []RouteRegistrar
	// Protected routes run behind bearer authentication.
	Protected []RouteRegistrar

	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the API handler wrapped in otelhttp.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(telemetry.WithRoute)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteMessage(w, cfg.Logger, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteMessage(w, cfg.Logger, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, cfg.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	for _, h := range cfg.Public {
		h.RegisterRoutes(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(cfg.Tokens, cfg.Logger))
		for _, h := range cfg.Protected {
			h.RegisterRoutes(r)
		}
	})

	return otelhttp.NewHandler(r, "api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func readiness(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.DB == nil {
			httpx.WriteJSON(w, cfg.Logger, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.DB.PingContext(ctx); err != nil {
			cfg.Logger.Warn("readiness check failed", zap.Error(err))
			httpx.WriteMessage(w, cfg.Logger, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httpx.WriteJSON(w, cfg.Logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}
