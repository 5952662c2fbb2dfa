package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifiedai/internal/platform/config"
	"verifiedai/internal/platform/metrics"
	"verifiedai/pkg/requestcontext"
	tu "verifiedai/pkg/testutil"
)

type echoSession struct{}

func (echoSession) Register(r chi.Router) {
	r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestcontext.SessionID(r.Context())))
	})
	r.Get("/page", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestRouter(health map[string]HealthCheck) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Logger:         tu.DiscardLogger(),
		Metrics:        metrics.NewWithRegistry(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Session:        config.Session{CookieName: "verifiedai_session", TTL: time.Hour},
		AllowedOrigins: []string{"https://app.example.com"},
		Health:         health,
		Handlers:       []Registrar{echoSession{}},
	})
}

func TestRouter_Health(t *testing.T) {
	t.Run("ok without dependencies and no session cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("failing check degrades", func(t *testing.T) {
		router := newTestRouter(map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
			"skip":  nil,
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"error"`)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestRouter_SessionOnFeatureRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "verifiedai_session", cookies[0].Name)
	assert.Equal(t, cookies[0].Value, rec.Body.String())
}

func TestRouter_SessionPersists(t *testing.T) {
	router := newTestRouter(nil)
	first := tu.DoRequest(router, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	require.Len(t, first.Result().Cookies(), 1)

	second := tu.DoRequest(router, tu.WithCookies(httptest.NewRequest(http.MethodGet, "/api/whoami", nil), first))

	require.Len(t, second.Result().Cookies(), 1)
	assert.Equal(t, first.Result().Cookies()[0].Value, second.Result().Cookies()[0].Value)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter(nil)

	t.Run("preflight on api from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/whoami", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("pages are not cross-origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"not_found"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "not_found")
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `verifiedai_http_requests_total{method="GET",route="/page",status="200"} 1`)
}
