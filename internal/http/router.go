// Package httpapi assembles the site's HTTP surface: pages, form posts, the
// JSON API, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"

	"verifiedai/internal/platform/config"
	"verifiedai/internal/platform/metrics"
	"verifiedai/internal/platform/middleware"
	"verifiedai/pkg/platform/httputil"
	"verifiedai/pkg/requestcontext"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router wires together. Nil Metrics disables
// recording; a nil entry in Health is skipped.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Session        config.Session
	AllowedOrigins []string
	Health         map[string]HealthCheck
	Handlers       []Registrar
	// TracerProvider defaults to the global provider when nil.
	TracerProvider trace.TracerProvider
}

// NewRouter wires all public endpoints. Health and metrics sit outside the
// session middleware so probes never mint cookies.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.Trace(d.TracerProvider))
	r.Use(middleware.AccessLog(d.Logger, d.Metrics))
	r.Use(chimw.Recoverer)
	if len(d.AllowedOrigins) > 0 {
		r.Use(apiOnly(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		})))
	}

	r.Get("/healthz", healthHandler(d.Health, d.Logger))
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(d.Session, d.Logger))
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		http.NotFound(w, r)
	})
	return r
}

// apiOnly applies mw to /api/ paths and passes everything else through untouched.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"request_id", requestcontext.RequestID(ctx),
					"check", name,
					"error", err,
				)
				resp.Status = "degraded"
				resp.Checks[name] = "error"
				continue
			}
			resp.Checks[name] = "ok"
		}
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
