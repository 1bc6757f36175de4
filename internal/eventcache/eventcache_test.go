package eventcache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestSeenRecentlyFailsOpenWithoutServer(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:1"})
	defer c.Close()

	assert.False(t, c.SeenRecently(context.Background(), "sig-1", time.Minute))
}

func TestSeenRecentlyNilCacheIsSafe(t *testing.T) {
	var c *Cache
	assert.False(t, c.SeenRecently(context.Background(), "sig-1", time.Minute))
}

func TestSeenRecentlyEmptyKeyIsSafe(t *testing.T) {
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	defer c.Close()
	assert.False(t, c.SeenRecently(context.Background(), "", time.Minute))
}
