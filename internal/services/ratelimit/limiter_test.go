package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFixedWindow(t *testing.T) *FixedWindow {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewFixedWindow(client, zap.NewNop())
}

// alignToFreshWindow sleeps past the next window boundary so every call in
// the test lands in the same window.
func alignToFreshWindow(window time.Duration) {
	time.Sleep(time.Until(time.Now().Truncate(window).Add(window)) + 20*time.Millisecond)
}

func TestFixedWindow_EnforcesLimit(t *testing.T) {
	f := newFixedWindow(t)
	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 3; i++ {
		ok, err := f.Allow(ctx, "client-a", 3, window)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be admitted", i+1)
	}

	ok, err := f.Allow(ctx, "client-a", 3, window)
	require.NoError(t, err)
	assert.False(t, ok, "request over the limit must be refused")

	remaining, err := f.Remaining(ctx, "client-a", 3, window)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestFixedWindow_RefusedBatchDoesNotConsumeQuota(t *testing.T) {
	f := newFixedWindow(t)
	ctx := context.Background()
	window := time.Minute

	ok, err := f.AllowN(ctx, "client-a", 3, 5, window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.AllowN(ctx, "client-a", 4, 5, window)
	require.NoError(t, err)
	assert.False(t, ok)

	// The refused batch was rolled back, so a smaller one still fits.
	ok, err = f.AllowN(ctx, "client-a", 2, 5, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFixedWindow_NewWindowRestoresQuota(t *testing.T) {
	f := newFixedWindow(t)
	ctx := context.Background()
	window := 500 * time.Millisecond

	alignToFreshWindow(window)

	ok, err := f.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(window)

	ok, err = f.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	assert.True(t, ok, "the next window starts with a fresh counter")
}

func TestFixedWindow_KeysAreIsolated(t *testing.T) {
	f := newFixedWindow(t)
	ctx := context.Background()
	window := time.Minute

	ok, err := f.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.Allow(ctx, "client-b", 1, window)
	require.NoError(t, err)
	assert.True(t, ok, "another client keeps its own quota")
}

func TestFixedWindow_ResetClearsCounters(t *testing.T) {
	f := newFixedWindow(t)
	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 2; i++ {
		ok, err := f.Allow(ctx, "client-a", 2, window)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, f.Reset(ctx, "client-a"))

	remaining, err := f.Remaining(ctx, "client-a", 2, window)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	ok, err := f.Allow(ctx, "client-a", 2, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInMemory_EnforcesLimitAndRefills(t *testing.T) {
	l := NewInMemory()
	t.Cleanup(l.Close)
	ctx := context.Background()
	window := 100 * time.Millisecond

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "client-a", 2, window)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := l.Allow(ctx, "client-a", 2, window)
	require.NoError(t, err)
	assert.False(t, ok, "bucket is empty")

	time.Sleep(120 * time.Millisecond)

	ok, err = l.Allow(ctx, "client-a", 2, window)
	require.NoError(t, err)
	assert.True(t, ok, "tokens refill over time")
}

func TestInMemory_ResetRestoresBurst(t *testing.T) {
	l := NewInMemory()
	t.Cleanup(l.Close)
	ctx := context.Background()
	window := time.Minute

	ok, err := l.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "client-a"))

	ok, err = l.Allow(ctx, "client-a", 1, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInMemory_RemainingTracksTakes(t *testing.T) {
	l := NewInMemory()
	t.Cleanup(l.Close)
	ctx := context.Background()
	window := time.Minute

	remaining, err := l.Remaining(ctx, "client-a", 5, window)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining, "unseen key reports the full quota")

	ok, err := l.AllowN(ctx, "client-a", 3, 5, window)
	require.NoError(t, err)
	require.True(t, ok)

	remaining, err = l.Remaining(ctx, "client-a", 5, window)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}
