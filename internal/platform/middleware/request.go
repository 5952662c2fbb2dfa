package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"verifiedai/internal/platform/metrics"
	"verifiedai/pkg/requestcontext"
)

// RequestContext copies chi's request ID and the arrival time into the
// HTTP-independent request context. Must run after chimw.RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog logs every request and records it in m (which may be nil).
func AccessLog(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := requestcontext.Now(r.Context())
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := routePattern(r)
				d := time.Since(start)
				m.ObserveRequest(route, r.Method, strconv.Itoa(status), d)
				logger.InfoContext(r.Context(), "http request",
					"request_id", requestcontext.RequestID(r.Context()),
					"method", r.Method,
					"route", route,
					"uri", r.RequestURI,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", d.Milliseconds(),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
