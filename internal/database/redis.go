package database

import (
	"context"
	"time"

	"github.com/radiusdt/ivt-audit/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDB holds the client behind the report cache.
type RedisDB struct {
	Client *redis.Client
	logger *zap.Logger
}

// NewRedisDB connects to Redis. The cache only sees a few requests per
// report, so the pool stays small and timeouts short.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   appName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	pingFn := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingBackend(ctx, "Redis", pingFn); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	return &RedisDB{Client: client, logger: logger}, nil
}

func (r *RedisDB) Close() error {
	if r.Client == nil {
		return nil
	}
	r.logger.Info("Redis connection closed")
	return r.Client.Close()
}

func (r *RedisDB) Health(ctx context.Context) error {
	return pingBackend(ctx, "Redis", func(ctx context.Context) error {
		return r.Client.Ping(ctx).Err()
	})
}
