// Package cache keeps computed analytics in Redis. Entries are namespaced by
// a generation counter so one INCR invalidates everything written before it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Minute

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps client. A zero ttl falls back to DefaultTTL.
func New(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *Cache) genKey() string { return c.prefix + ":gen" }

func (c *Cache) key(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key), nil
}

// Get decodes the cached value for key into dst and reports whether it was present.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	full, err := c.key(ctx, key)
	if err != nil {
		return false, err
	}
	data, err := c.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A stale shape from an older build is a miss.
		c.logger.Warn("cache_decode_failed", "key", full, "error", err)
		return false, nil
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any) error {
	full, err := c.key(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, full, data, c.ttl).Err()
}

// Invalidate drops every entry by moving to the next generation.
func (c *Cache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.genKey()).Result()
	if err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	c.logger.Debug("cache_invalidated", "generation", gen)
	return nil
}
