package httpserver

import (
	"net/http"
	"time"

	"verifiedai/internal/platform/config"
)

// New builds the HTTP server. WriteTimeout comes from configuration and is
// validated to outlast the verification step budget, so uploads followed by
// result polling finish before the connection is cut.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}
