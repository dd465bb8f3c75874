package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportCache stores rendered report payloads between scans.
type ReportCache interface {
	// Get decodes the cached value for key into dst. It reports false on a
	// miss. gen identifies the cache generation the lookup ran against.
	Get(ctx context.Context, key string, dst any) (gen int64, hit bool, err error)
	// Set stores value for key under generation gen, as returned by a Get
	// made before value was computed. A value stored under an invalidated
	// generation is never served.
	Set(ctx context.Context, gen int64, key string, value any) error
	// Invalidate drops every cached report, typically after an import.
	Invalidate(ctx context.Context) error
}

const (
	cachePrefix   = "ivt:report"
	generationKey = cachePrefix + ":generation"
)

// RedisReportCache implements ReportCache in Redis. Keys are namespaced by a
// generation counter so invalidation is a single INCR.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportCache creates a Redis-backed report cache.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func (c *RedisReportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

func generationKeyFor(gen int64, name string) string {
	return fmt.Sprintf("%s:%d:%s", cachePrefix, gen, name)
}

func (c *RedisReportCache) Get(ctx context.Context, name string, dst any) (int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, err
	}

	b, err := c.client.Get(ctx, generationKeyFor(gen, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("failed to get cached report: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return gen, false, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return gen, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, gen int64, name string, value any) error {
	key := generationKeyFor(gen, name)

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}
