// Package eventcache deduplicates events using a Redis-backed cache keyed
// by the configured cache field, giving AgentConfig's event_cache_key /
// event_cache_ttl / disable_event_cache_check fields real runtime effect.
package eventcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache deduplicates by a caller-supplied key within a TTL window.
type Cache struct {
	client *redis.Client
	prefix string
}

// Config configures a Cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces cache keys, defaulting to "reflex-agent:event-cache:".
	Prefix string
}

// New constructs a Cache from cfg.
func New(cfg Config) *Cache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "reflex-agent:event-cache:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, prefix: prefix}
}

// NewWithClient wraps an existing Redis client, useful for tests against
// a miniredis-style in-memory server.
func NewWithClient(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "reflex-agent:event-cache:"
	}
	return &Cache{client: client, prefix: prefix}
}

// SeenRecently reports whether key was recorded within ttl, and records it
// for the next ttl window if not. A Redis error is treated as "not seen"
// so a cache outage fails open rather than dropping events.
func (c *Cache) SeenRecently(ctx context.Context, key string, ttl time.Duration) bool {
	if c == nil || c.client == nil || key == "" {
		return false
	}
	set, err := c.client.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil {
		return false
	}
	return !set
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("eventcache: close: %w", err)
	}
	return nil
}
