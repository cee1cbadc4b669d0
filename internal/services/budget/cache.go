package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	snapshotKey = "budget:snapshot"
	spentPrefix = "budget:spent:"
)

// Cache mirrors the ledger snapshot into Redis so the worker and any
// sibling instance can read budget state without a round trip to this
// process.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, logger: logger, ttl: ttl}
}

// Publish writes the snapshot with a TTL; a stale snapshot disappears
// rather than mislead.
func (c *Cache) Publish(ctx context.Context, status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal budget snapshot: %w", err)
	}
	return c.client.SetEx(ctx, snapshotKey, data, c.ttl).Err()
}

// Load returns the last published snapshot, or nil when none is live.
func (c *Cache) Load(ctx context.Context) (*Status, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read budget snapshot: %w", err)
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal budget snapshot: %w", err)
	}
	return &status, nil
}

// IncrementSpent bumps the shared per-period spend counter. The worker
// calls this while persisting usage so sibling instances converge.
func (c *Cache) IncrementSpent(ctx context.Context, period string, amount float64) (float64, error) {
	key := spentPrefix + period

	newSpent, err := c.client.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment spent amount: %w", err)
	}
	// 45 days outlives any budget month.
	c.client.Expire(ctx, key, 45*24*time.Hour)

	return newSpent, nil
}

// SpentFor reads the shared per-period counter.
func (c *Cache) SpentFor(ctx context.Context, period string) (float64, error) {
	val, err := c.client.Get(ctx, spentPrefix+period).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Invalidate drops the snapshot and a period's counter.
func (c *Cache) Invalidate(ctx context.Context, period string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, snapshotKey)
	pipe.Del(ctx, spentPrefix+period)
	_, err := pipe.Exec(ctx)
	return err
}
