package cache

import (
	"context"
	"time"

	"github.com/smartscale/scale-server/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResultTTL bounds how long a terminal job result may be served without
// touching the database. Confirmations invalidate eagerly, so this only
// limits staleness after out-of-band writes.
const ResultTTL = 60 * time.Second

// Cache is a read-through cache for terminal job results.
// Implementations must be safe for concurrent use.
type Cache interface {
	SetResult(ctx context.Context, jobID uuid.UUID, payload []byte, ttl time.Duration) error
	GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, bool, error)
	InvalidateResult(ctx context.Context, jobID uuid.UUID) error
	Ping(ctx context.Context) error
	Close() error
}

// NewCache returns a Redis-backed cache when a URL is configured and a
// no-op cache otherwise, so callers never branch on configuration.
func NewCache(cfg *config.Config) (Cache, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return &NoopCache{}, nil
	}

	return NewRedisCache(cfg.Redis.URL)
}

// RedisCache implements Cache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) SetResult(ctx context.Context, jobID uuid.UUID, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, ResultKey(jobID), payload, ttl).Err()
}

func (c *RedisCache) GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, ResultKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return val, true, nil
}

func (c *RedisCache) InvalidateResult(ctx context.Context, jobID uuid.UUID) error {
	return c.client.Del(ctx, ResultKey(jobID)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache satisfies Cache without storing anything.
type NoopCache struct{}

func (NoopCache) SetResult(context.Context, uuid.UUID, []byte, time.Duration) error {
	return nil
}

func (NoopCache) GetResult(context.Context, uuid.UUID) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopCache) InvalidateResult(context.Context, uuid.UUID) error {
	return nil
}

func (NoopCache) Ping(context.Context) error {
	return nil
}

func (NoopCache) Close() error {
	return nil
}
