package cache

import (
	"context"
	"testing"
	"time"

	"github.com/smartscale/scale-server/internal/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheWithoutRedisIsNoop(t *testing.T) {
	for name, cfg := range map[string]*config.Config{
		"nil redis": {},
		"empty url": {Redis: &config.RedisConfig{URL: ""}},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := NewCache(cfg)
			require.NoError(t, err)
			assert.IsType(t, &NoopCache{}, c)
		})
	}
}

func TestNewCacheWithRedisURL(t *testing.T) {
	c, err := NewCache(&config.Config{Redis: &config.RedisConfig{URL: "redis://localhost:6379/0"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.Close())
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-redis-url")
	assert.Error(t, err)
}

func TestNoopCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	c := &NoopCache{}
	jobID := uuid.New()

	require.NoError(t, c.SetResult(ctx, jobID, []byte(`{"status":"done"}`), time.Minute))

	payload, found, err := c.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, payload)

	assert.NoError(t, c.InvalidateResult(ctx, jobID))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestResultKeyFormat(t *testing.T) {
	jobID := uuid.MustParse("273a8f2c-5b7e-4f0a-9a83-0f63f5c9a001")
	assert.Equal(t, "result:273a8f2c-5b7e-4f0a-9a83-0f63f5c9a001", ResultKey(jobID))
}
