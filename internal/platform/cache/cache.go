// Package cache provides a Dragonfly/Redis client wrapper with JSON value
// helpers and generation counters for invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client *redis.Client
	prefix string
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New creates a new cache client. Every key is namespaced with prefix.
func New(ctx context.Context, url, prefix string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Cache {
	return &Cache{Client: client, prefix: prefix}
}

// Key joins parts onto the cache prefix with ':'.
func (c *Cache) Key(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		if key != "" {
			key += ":"
		}
		key += p
	}
	return key
}

// GetJSON decodes the value at key into dest. It returns ErrMiss when the
// key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores value at key as JSON with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.Client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Generation returns the current counter at key, 0 when unset.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache generation %s: %w", key, err)
	}
	return n, nil
}

// Bump increments the counter at key. Entries keyed by the old generation
// become unreachable and expire on their own TTL.
func (c *Cache) Bump(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache bump %s: %w", key, err)
	}
	return n, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
