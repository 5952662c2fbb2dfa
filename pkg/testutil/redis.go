package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Redis is an in-process Redis server with a connected client.
type Redis struct {
	Server *miniredis.Miniredis
	Client *redis.Client
}

// NewRedis starts a miniredis instance that is torn down with the test.
func NewRedis(t *testing.T) *Redis {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &Redis{Server: srv, Client: client}
}

// URL returns a redis:// URL pointing at the server.
func (r *Redis) URL() string {
	return "redis://" + r.Server.Addr()
}
