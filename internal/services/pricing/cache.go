package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "pricing:"
	cacheLoadedKey = "pricing:_loaded"
	cacheTTL       = time.Hour
)

// Cache mirrors effective pricing rows into Redis under pricing:<model_id>
// keys so they stay visible across replicas and to out-of-process tooling.
// The manager stays the source of truth; misses fall back to it and
// backfill asynchronously.
type Cache struct {
	client  *redis.Client
	manager *Manager
	logger  *zap.Logger
}

func NewCache(client *redis.Client, manager *Manager, logger *zap.Logger) *Cache {
	return &Cache{client: client, manager: manager, logger: logger}
}

// LoadAll writes every known model's effective row in one pipeline, then
// sets the loaded marker.
func (c *Cache) LoadAll(ctx context.Context) error {
	known := c.manager.ListModels()

	pipe := c.client.Pipeline()
	count := 0
	for modelID := range known {
		p := c.manager.GetPricing(modelID)
		if p == nil {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal pricing for %s: %w", modelID, err)
		}
		pipe.Set(ctx, cacheKeyPrefix+modelID, data, cacheTTL)
		count++
	}
	pipe.Set(ctx, cacheLoadedKey, time.Now().Format(time.RFC3339), cacheTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to warm pricing cache: %w", err)
	}

	c.logger.Info("pricing cache warmed", zap.Int("models", count))
	return nil
}

// Get returns the cached row, falling back to the manager on a miss.
func (c *Cache) Get(ctx context.Context, modelID string) (*Pricing, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+modelID).Bytes()
	if err == nil {
		var p Pricing
		if unmarshalErr := json.Unmarshal(data, &p); unmarshalErr == nil {
			return &p, nil
		}
		c.logger.Warn("corrupt pricing cache entry", zap.String("model", modelID))
	} else if err != redis.Nil {
		c.logger.Warn("pricing cache read failed",
			zap.String("model", modelID), zap.Error(err))
	}

	p := c.manager.GetPricing(modelID)
	if p == nil {
		return nil, fmt.Errorf("no pricing for model %q", modelID)
	}

	go c.backfill(modelID, p)
	return p, nil
}

func (c *Cache) backfill(modelID string, p *Pricing) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+modelID, data, cacheTTL).Err(); err != nil {
		c.logger.Debug("pricing cache backfill failed",
			zap.String("model", modelID), zap.Error(err))
	}
}

// Invalidate drops a single entry so the next read re-resolves it.
func (c *Cache) Invalidate(ctx context.Context, modelID string) error {
	return c.client.Del(ctx, cacheKeyPrefix+modelID).Err()
}

// Loaded reports whether the warm-load marker is present.
func (c *Cache) Loaded(ctx context.Context) bool {
	n, err := c.client.Exists(ctx, cacheLoadedKey).Result()
	return err == nil && n > 0
}

// Refresh re-warms the cache. The sync loop calls this after reloading
// database overrides.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.LoadAll(ctx)
}
