// Package redis holds the shared Redis infrastructure used across service
// packages: distributed locks for single-writer sections and the settlement
// event stream.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Lock is one held distributed lock.
type Lock struct {
	client *redis.Client
	logger *zap.Logger
	key    string
	value  string
	ttl    time.Duration
}

// LockManager hands out TTL-bound locks backed by SET NX.
type LockManager struct {
	client *redis.Client
	logger *zap.Logger
}

func NewLockManager(client *redis.Client, logger *zap.Logger) *LockManager {
	return &LockManager{client: client, logger: logger}
}

// Acquire takes the named lock or fails immediately when another holder has
// it. The TTL bounds how long a crashed holder can block others.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	value, err := lockValue()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock value: %w", err)
	}

	key := "lock:" + name
	ok, err := lm.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("lock already held: %s", name)
	}

	lm.logger.Debug("lock acquired",
		zap.String("lock", name), zap.Duration("ttl", ttl))

	return &Lock{client: lm.client, logger: lm.logger, key: key, value: value, ttl: ttl}, nil
}

// WithLock runs fn while holding the named lock, releasing it afterwards
// even when fn fails.
func (lm *LockManager) WithLock(ctx context.Context, name string, ttl time.Duration, fn func() error) error {
	lock, err := lm.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			lm.logger.Warn("lock release failed",
				zap.String("lock", name), zap.Error(releaseErr))
		}
	}()
	return fn()
}

// IsHeld reports whether the named lock currently exists.
func (lm *LockManager) IsHeld(ctx context.Context, name string) (bool, error) {
	n, err := lm.client.Exists(ctx, "lock:"+name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return n > 0, nil
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if res.(int64) == 0 {
		return fmt.Errorf("lock not owned by this holder")
	}
	l.logger.Debug("lock released", zap.String("key", l.key))
	return nil
}

// Extend pushes the expiry out by additional time, only while still owned.
func (l *Lock) Extend(ctx context.Context, additional time.Duration) error {
	ttl := l.ttl + additional
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, int64(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if res.(int64) == 0 {
		return fmt.Errorf("lock not owned by this holder or expired")
	}
	l.ttl = ttl
	return nil
}

func lockValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
