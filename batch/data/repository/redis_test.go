package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisRepository runs against a live server, e.g.
// BATCHD_TEST_REDIS=localhost:6379 go test ./batch/data/repository
func TestRedisRepository(t *testing.T) {
	addr := os.Getenv("BATCHD_TEST_REDIS")
	if addr == "" {
		t.Skip("BATCHD_TEST_REDIS not set")
	}
	rc := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rc.Close() })
	if err := rc.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	testRepository(t, NewRedis(rc, time.Hour))
}
