package service

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newCacheBackendForTest starts a throwaway miniredis and a client
// pointed at it, for exercising the redis negative lookup cache. The
// server handle is returned so tests can advance TTLs and inspect keys.
func newCacheBackendForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}
