package registry

import "sync"

// healthTracker counts consecutive failures per model. A model is considered
// unhealthy once failures reach the threshold; any success clears it.
type healthTracker struct {
	mu        sync.RWMutex
	failures  map[string]int
	threshold int
}

func newHealthTracker(threshold int) *healthTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &healthTracker{
		failures:  make(map[string]int),
		threshold: threshold,
	}
}

func (h *healthTracker) healthy(modelID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failures[modelID] < h.threshold
}

func (h *healthTracker) recordSuccess(modelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, modelID)
}

// recordFailure returns true exactly when this failure crossed the
// threshold.
func (h *healthTracker) recordFailure(modelID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[modelID]++
	return h.failures[modelID] == h.threshold
}

func (h *healthTracker) reset(modelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, modelID)
}
