package circuitbreaker

import (
	"sync"
	"time"
)

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// SimpleBreaker opens after `threshold` consecutive failures and closes
// again once `cooldown` has elapsed since the last failure. It protects one
// upstream; use Manager for a keyed fleet.
type SimpleBreaker struct {
	mu          sync.Mutex
	failures    int
	open        bool
	lastFailure time.Time

	threshold int
	cooldown  time.Duration
}

func New(threshold int, cooldown time.Duration) *SimpleBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &SimpleBreaker{threshold: threshold, cooldown: cooldown}
}

// IsOpen reports whether calls should be blocked. An expired cooldown closes
// the breaker on the spot.
func (b *SimpleBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false
	}
	if time.Since(b.lastFailure) > b.cooldown {
		b.open = false
		b.failures = 0
		return false
	}
	return true
}

func (b *SimpleBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *SimpleBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.threshold {
		b.open = true
	}
}

func (b *SimpleBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// State returns a point-in-time view for monitoring.
func (b *SimpleBreaker) State() (open bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.failures
}

// Manager lazily creates one breaker per key, sharing a default
// configuration.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*SimpleBreaker

	threshold int
	cooldown  time.Duration
}

func NewManager(threshold int, cooldown time.Duration) *Manager {
	return &Manager{
		breakers:  make(map[string]*SimpleBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (m *Manager) Get(key string) *SimpleBreaker {
	m.mu.RLock()
	b, ok := m.breakers[key]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[key]; ok {
		return b
	}
	b = New(m.threshold, m.cooldown)
	m.breakers[key] = b
	return b
}

func (m *Manager) IsOpen(key string) bool { return m.Get(key).IsOpen() }

func (m *Manager) RecordSuccess(key string) { m.Get(key).RecordSuccess() }

func (m *Manager) RecordFailure(key string) { m.Get(key).RecordFailure() }

func (m *Manager) Reset(key string) { m.Get(key).Reset() }

// BreakerState is a point-in-time view of one breaker.
type BreakerState struct {
	Open     bool `json:"open"`
	Failures int  `json:"failures"`
}

// States snapshots every breaker for monitoring output.
func (m *Manager) States() map[string]BreakerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]BreakerState, len(m.breakers))
	for key, b := range m.breakers {
		open, failures := b.State()
		out[key] = BreakerState{Open: open, Failures: failures}
	}
	return out
}
