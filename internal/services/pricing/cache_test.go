package pricing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := newTestManager(t)
	return NewCache(client, m, zap.NewNop()), mr
}

func TestCache_LoadAll(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.LoadAll(ctx))

	t.Run("entries written with ttl", func(t *testing.T) {
		assert.True(t, mr.Exists("pricing:gpt-4o"))
		assert.True(t, mr.Exists("pricing:qwen-turbo"))
		assert.Greater(t, mr.TTL("pricing:gpt-4o"), time.Duration(0))
	})

	t.Run("loaded marker set", func(t *testing.T) {
		assert.True(t, cache.Loaded(ctx))
	})

	t.Run("entries round-trip", func(t *testing.T) {
		raw, err := mr.Get("pricing:gpt-4o")
		require.NoError(t, err)
		var p Pricing
		require.NoError(t, json.Unmarshal([]byte(raw), &p))
		assert.Equal(t, 0.0025, p.InputPer1K)
	})
}

func TestCache_Get(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	t.Run("miss falls back to manager", func(t *testing.T) {
		p, err := cache.Get(ctx, "claude-opus-4")
		require.NoError(t, err)
		assert.Equal(t, 0.015, p.InputPer1K)
	})

	t.Run("hit served from redis", func(t *testing.T) {
		custom := &Pricing{InputPer1K: 42, OutputPer1K: 43}
		data, err := json.Marshal(custom)
		require.NoError(t, err)
		require.NoError(t, mr.Set("pricing:gpt-4o", string(data)))

		p, err := cache.Get(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, 42.0, p.InputPer1K)
	})

	t.Run("corrupt entry falls back to manager", func(t *testing.T) {
		require.NoError(t, mr.Set("pricing:qwen-max", "{not json"))

		p, err := cache.Get(ctx, "qwen-max")
		require.NoError(t, err)
		assert.Equal(t, 0.0016, p.InputPer1K)
	})

	t.Run("unknown model errors", func(t *testing.T) {
		_, err := cache.Get(ctx, "no-such-model")
		assert.Error(t, err)
	})
}

func TestCache_Invalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.LoadAll(ctx))
	require.True(t, mr.Exists("pricing:gpt-5"))

	require.NoError(t, cache.Invalidate(ctx, "gpt-5"))
	assert.False(t, mr.Exists("pricing:gpt-5"))
}
