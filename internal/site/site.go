// Package site serves the static site configuration object.
package site

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"verifiedai/internal/platform/config"
	"verifiedai/pkg/platform/httputil"
)

// ConfigPath is where the configuration object is served.
const ConfigPath = "/api/site-config"

// Config is the public site identity. It never changes while the process runs.
type Config struct {
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
}

func FromConfig(cfg config.Site) Config {
	return Config{Name: cfg.Name, Tagline: cfg.Tagline}
}

type Handler struct {
	config Config
}

func NewHandler(cfg Config) *Handler {
	return &Handler{config: cfg}
}

func (h *Handler) Register(r chi.Router) {
	r.Get(ConfigPath, h.handleConfig)
}

func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.config)
}

// Fetch reads the configuration object from a running server. Non-2xx
// answers and payloads missing name or tagline are errors.
func Fetch(ctx context.Context, hc *http.Client, baseURL string, logger *slog.Logger) (*Config, error) {
	url := strings.TrimRight(baseURL, "/") + ConfigPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build site config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch site config: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read site config: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch site config: status %d", resp.StatusCode)
	}

	var payload struct {
		Name    *string `json:"name"`
		Tagline *string `json:"tagline"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.ErrorContext(ctx, "site config validation failed", "error", err)
		return nil, fmt.Errorf("decode site config: %w", err)
	}
	var missing []string
	if payload.Name == nil {
		missing = append(missing, "name")
	}
	if payload.Tagline == nil {
		missing = append(missing, "tagline")
	}
	if len(missing) > 0 {
		logger.ErrorContext(ctx, "site config validation failed", "missing", missing)
		return nil, fmt.Errorf("site config missing %s", strings.Join(missing, ", "))
	}
	return &Config{Name: *payload.Name, Tagline: *payload.Tagline}, nil
}
