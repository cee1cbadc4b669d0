package circuitbreaker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("with valid parameters", func(t *testing.T) {
		breaker := New(5, 30*time.Second)
		assert.Equal(t, 5, breaker.threshold)
		assert.Equal(t, 30*time.Second, breaker.cooldown)
		assert.False(t, breaker.open)
		assert.Equal(t, 0, breaker.failures)
	})

	t.Run("with zero values uses defaults", func(t *testing.T) {
		breaker := New(0, 0)
		assert.Equal(t, defaultThreshold, breaker.threshold)
		assert.Equal(t, defaultCooldown, breaker.cooldown)
	})

	t.Run("with negative values uses defaults", func(t *testing.T) {
		breaker := New(-1, -1*time.Second)
		assert.Equal(t, defaultThreshold, breaker.threshold)
		assert.Equal(t, defaultCooldown, breaker.cooldown)
	})
}

func TestSimpleBreaker_IsOpen(t *testing.T) {
	breaker := New(3, 100*time.Millisecond)

	t.Run("starts closed", func(t *testing.T) {
		assert.False(t, breaker.IsOpen())
	})

	t.Run("stays closed under threshold", func(t *testing.T) {
		breaker.RecordFailure()
		breaker.RecordFailure()
		assert.False(t, breaker.IsOpen())
	})

	t.Run("opens when threshold reached", func(t *testing.T) {
		breaker.RecordFailure() // Third failure
		assert.True(t, breaker.IsOpen())
	})

	t.Run("stays open during cooldown", func(t *testing.T) {
		time.Sleep(50 * time.Millisecond) // Half cooldown
		assert.True(t, breaker.IsOpen())
	})

	t.Run("closes after cooldown", func(t *testing.T) {
		time.Sleep(60 * time.Millisecond) // Remaining cooldown + buffer
		assert.False(t, breaker.IsOpen())

		// The expiry also clears the failure count
		_, failures := breaker.State()
		assert.Equal(t, 0, failures)
	})
}

func TestSimpleBreaker_RecordSuccess(t *testing.T) {
	breaker := New(3, 100*time.Millisecond)

	t.Run("resets failures when closed", func(t *testing.T) {
		breaker.RecordFailure()
		breaker.RecordFailure()
		assert.Equal(t, 2, breaker.failures)

		breaker.RecordSuccess()
		assert.Equal(t, 0, breaker.failures)
		assert.False(t, breaker.open)
	})

	t.Run("closes circuit and resets failures", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			breaker.RecordFailure()
		}
		assert.True(t, breaker.open)

		breaker.RecordSuccess()
		assert.False(t, breaker.open)
		assert.Equal(t, 0, breaker.failures)
	})
}

func TestSimpleBreaker_Reset(t *testing.T) {
	breaker := New(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure()
	}
	assert.True(t, breaker.open)

	breaker.Reset()
	assert.False(t, breaker.open)
	assert.Equal(t, 0, breaker.failures)
}

func TestSimpleBreaker_State(t *testing.T) {
	breaker := New(3, 100*time.Millisecond)

	t.Run("initial state", func(t *testing.T) {
		open, failures := breaker.State()
		assert.False(t, open)
		assert.Equal(t, 0, failures)
	})

	t.Run("after failures", func(t *testing.T) {
		breaker.RecordFailure()
		breaker.RecordFailure()

		open, failures := breaker.State()
		assert.False(t, open)
		assert.Equal(t, 2, failures)
	})

	t.Run("when open", func(t *testing.T) {
		breaker.RecordFailure() // Third failure

		open, failures := breaker.State()
		assert.True(t, open)
		assert.Equal(t, 3, failures)
	})
}

func TestSimpleBreaker_ConcurrentAccess(t *testing.T) {
	breaker := New(100, 100*time.Millisecond)
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				breaker.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.True(t, breaker.IsOpen())
	open, failures := breaker.State()
	assert.True(t, open)
	assert.Equal(t, numGoroutines*operationsPerGoroutine, failures)
}

func TestManager_Get(t *testing.T) {
	manager := NewManager(3, 100*time.Millisecond)

	t.Run("creates breaker on first use", func(t *testing.T) {
		breaker := manager.Get("gpt-4o")
		assert.NotNil(t, breaker)
		assert.Equal(t, 3, breaker.threshold)
	})

	t.Run("returns same breaker for same key", func(t *testing.T) {
		first := manager.Get("gpt-4o")
		second := manager.Get("gpt-4o")
		assert.Same(t, first, second)
	})

	t.Run("separate breakers per key", func(t *testing.T) {
		a := manager.Get("gpt-4o")
		b := manager.Get("claude-sonnet-4")
		assert.NotSame(t, a, b)

		for i := 0; i < 3; i++ {
			a.RecordFailure()
		}
		assert.True(t, manager.IsOpen("gpt-4o"))
		assert.False(t, manager.IsOpen("claude-sonnet-4"))
	})
}

func TestManager_States(t *testing.T) {
	manager := NewManager(2, time.Minute)

	manager.RecordFailure("qwen-turbo")
	manager.RecordFailure("qwen-turbo")
	manager.RecordFailure("gpt-4o-mini")
	manager.RecordSuccess("o3-pro")

	states := manager.States()
	assert.Len(t, states, 3)

	assert.True(t, states["qwen-turbo"].Open)
	assert.Equal(t, 2, states["qwen-turbo"].Failures)

	assert.False(t, states["gpt-4o-mini"].Open)
	assert.Equal(t, 1, states["gpt-4o-mini"].Failures)

	assert.False(t, states["o3-pro"].Open)
}

func TestManager_Reset(t *testing.T) {
	manager := NewManager(2, time.Minute)

	manager.RecordFailure("qwen-max")
	manager.RecordFailure("qwen-max")
	assert.True(t, manager.IsOpen("qwen-max"))

	manager.Reset("qwen-max")
	assert.False(t, manager.IsOpen("qwen-max"))
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager := NewManager(1000, time.Minute)
	const numGoroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("model-%d", id%4)
			for j := 0; j < 25; j++ {
				manager.RecordFailure(key)
				manager.IsOpen(key)
			}
		}(i)
	}
	wg.Wait()

	states := manager.States()
	assert.Len(t, states, 4)

	total := 0
	for _, state := range states {
		total += state.Failures
	}
	assert.Equal(t, numGoroutines*25, total)
}
