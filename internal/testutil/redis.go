package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestRedis starts a disposable Redis container and returns a connected
// client plus a cleanup function. Package-level unit tests that only need a
// protocol-faithful fake should prefer miniredis; this helper exists for
// flows that exercise Redis and Postgres together. Skipped under -short.
func NewTestRedis(t *testing.T) (*redis.Client, func()) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := testredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start Redis container")

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get Redis connection string")

	opt, err := redis.ParseURL(connStr)
	require.NoError(t, err, "Failed to parse Redis URL")

	client := redis.NewClient(opt)
	require.NoError(t, client.Ping(ctx).Err(), "Failed to ping Redis")

	cleanup := func() {
		_ = client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return client, cleanup
}
