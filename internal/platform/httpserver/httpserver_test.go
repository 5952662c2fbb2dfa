package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifiedai/internal/platform/config"
)

func TestNewUsesConfiguredWriteTimeout(t *testing.T) {
	srv := New(config.Server{Addr: ":9090", WriteTimeout: 45 * time.Second}, http.NotFoundHandler())

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 45*time.Second, srv.WriteTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)
}
