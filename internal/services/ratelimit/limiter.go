// Package ratelimit provides the request admission limiters behind the HTTP
// middleware: a Redis fixed-window counter shared across instances, and an
// in-process token bucket used when Redis is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter admits or rejects keyed requests against a windowed quota.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// FixedWindow counts requests per aligned window on Redis, one counter key
// per window. A rejected increment is rolled back so refused requests do not
// consume quota.
type FixedWindow struct {
	client *redis.Client
	logger *zap.Logger
}

func NewFixedWindow(client *redis.Client, logger *zap.Logger) *FixedWindow {
	return &FixedWindow{client: client, logger: logger.Named("ratelimit")}
}

func (f *FixedWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.AllowN(ctx, key, 1, limit, window)
}

func (f *FixedWindow) AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	windowKey := windowKey(key, window)

	count, err := f.client.IncrBy(ctx, windowKey, int64(n)).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit increment failed: %w", err)
	}
	// The caller that created the counter owns its expiry.
	if count == int64(n) {
		f.client.Expire(ctx, windowKey, window)
	}

	if count > int64(limit) {
		f.client.DecrBy(ctx, windowKey, int64(n))
		return false, nil
	}
	return true, nil
}

// Remaining reports the unused quota in the current window.
func (f *FixedWindow) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := f.client.Get(ctx, windowKey(key, window)).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit read failed: %w", err)
	}
	if count >= limit {
		return 0, nil
	}
	return limit - count, nil
}

// Reset drops every window counter for the key.
func (f *FixedWindow) Reset(ctx context.Context, key string) error {
	iter := f.client.Scan(ctx, 0, key+":*", 100).Iterator()
	var stale []string
	for iter.Next(ctx) {
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("rate limit scan failed: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	return f.client.Del(ctx, stale...).Err()
}

func windowKey(key string, window time.Duration) string {
	return fmt.Sprintf("%s:%d", key, time.Now().Truncate(window).Unix())
}

// InMemory is a token-bucket limiter for degraded single-instance operation.
// Refill is continuous, so bursts smooth out instead of resetting on window
// boundaries like the Redis limiter.
type InMemory struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

func NewInMemory() *InMemory {
	l := &InMemory{
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *InMemory) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

func (l *InMemory) AllowN(_ context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	b := l.bucket(key, limit)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(limit, window)
	if b.tokens < float64(n) {
		return false, nil
	}
	b.tokens -= float64(n)
	return true, nil
}

func (l *InMemory) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return limit, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(limit, window)
	return int(b.tokens), nil
}

func (l *InMemory) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

// Close stops the idle-bucket janitor.
func (l *InMemory) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *InMemory) bucket(key string, limit int) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{tokens: float64(limit), lastRefill: time.Now()}
	l.buckets[key] = b
	return b
}

// refill tops the bucket up for the time elapsed since the last call.
// Callers hold b.mu.
func (b *bucket) refill(limit int, window time.Duration) {
	now := time.Now()
	rate := float64(limit) / window.Seconds()
	b.tokens = min(float64(limit), b.tokens+now.Sub(b.lastRefill).Seconds()*rate)
	b.lastRefill = now
}

func (l *InMemory) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, b := range l.buckets {
				b.mu.Lock()
				idle := time.Since(b.lastRefill) > time.Hour
				b.mu.Unlock()
				if idle {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
