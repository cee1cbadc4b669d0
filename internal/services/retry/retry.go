package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Config defines backoff behavior for one call site.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // growth factor between retries
	Jitter       bool          // adds up to 30% random slack per wait
}

// DefaultConfig suits provider calls running inside a request timeout
// envelope: a short first pause, doubling, capped well under the envelope.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ForAttempts derives a config where attempts = 1 initial + retries.
func ForAttempts(retries int) *Config {
	c := DefaultConfig()
	if retries >= 0 {
		c.MaxAttempts = retries + 1
	}
	return c
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// DefaultIsRetryable retries transient provider failures. Rate limits and
// timeouts may clear on a later attempt; everything else in the taxonomy
// (missing keys, budget denials, malformed requests) will fail identically,
// so retrying only wastes the timeout envelope.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch domain.CodeOf(err) {
	case domain.CodeRateLimitExceeded, domain.CodeTimeout:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do executes fn with exponential backoff until it succeeds, exhausts
// MaxAttempts, hits a non-retryable error, or the context ends.
func Do(ctx context.Context, config *Config, fn RetryableFunc, isRetryable IsRetryable) error {
	if config == nil {
		config = DefaultConfig()
	}
	if isRetryable == nil {
		isRetryable = DefaultIsRetryable
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		if attempt > 0 {
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		actualDelay := delay
		if config.Jitter {
			jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
			actualDelay = delay + jitter
		}

		select {
		case <-time.After(actualDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// CalculateBackoff returns the delay preceding the given retry attempt,
// without jitter. Attempt 1 is the first retry.
func CalculateBackoff(attempt int, config *Config) time.Duration {
	if config == nil {
		config = DefaultConfig()
	}
	if attempt <= 0 {
		return config.InitialDelay
	}
	delay := config.InitialDelay * time.Duration(math.Pow(config.Multiplier, float64(attempt-1)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
