// Package usage owns the in-process UsageSession map and the Redis queue
// that feeds the reconciliation worker. Session state here is the live
// view; Postgres rows written by the worker are the durable one.
package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// ModelUsage is the per-model slice of a session's breakdown.
type ModelUsage struct {
	Requests       int     `json:"requests"`
	Tokens         int     `json:"tokens"`
	Cost           float64 `json:"cost"`
	TotalLatencyMS int64   `json:"total_latency_ms"`
	Errors         int     `json:"errors"`
}

// AvgLatencyMS is the mean latency across the model's requests.
func (m ModelUsage) AvgLatencyMS() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.TotalLatencyMS) / float64(m.Requests)
}

// Session is the live state of one usage session.
type Session struct {
	ID                 string                 `json:"id"`
	Status             string                 `json:"status"`
	StartedAt          time.Time              `json:"started_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	LastActivityAt     time.Time              `json:"last_activity_at"`
	TotalRequests      int                    `json:"total_requests"`
	SuccessfulRequests int                    `json:"successful_requests"`
	FailedRequests     int                    `json:"failed_requests"`
	TotalTokens        int                    `json:"total_tokens"`
	TotalCost          float64                `json:"total_cost"`
	ModelBreakdown     map[string]*ModelUsage `json:"model_breakdown"`
	UserMetadata       map[string]string      `json:"user_metadata,omitempty"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.ModelBreakdown = make(map[string]*ModelUsage, len(s.ModelBreakdown))
	for id, mu := range s.ModelBreakdown {
		c := *mu
		cp.ModelBreakdown[id] = &c
	}
	if s.UserMetadata != nil {
		cp.UserMetadata = make(map[string]string, len(s.UserMetadata))
		for k, v := range s.UserMetadata {
			cp.UserMetadata[k] = v
		}
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// RecordParams is one request's contribution to a session.
type RecordParams struct {
	ModelID   string
	Usage     domain.TokenUsage
	Cost      float64
	LatencyMS int64
	Success   bool
	ErrorCode domain.Code
}

// Tracker serializes updates per session key. The registry lock only guards
// the session map; per-session locks are held for the actual update so two
// sessions never contend with each other.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	logger   *zap.Logger
}

type trackedSession struct {
	mu      sync.Mutex
	session *Session
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		logger:   logger,
	}
}

// acquire returns the per-key entry, creating the session on first use.
func (t *Tracker) acquire(sessionKey string, metadata map[string]string) *trackedSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.sessions[sessionKey]
	if !ok {
		now := time.Now()
		ts = &trackedSession{session: &Session{
			ID:             sessionKey,
			Status:         StatusActive,
			StartedAt:      now,
			LastActivityAt: now,
			ModelBreakdown: make(map[string]*ModelUsage),
			UserMetadata:   metadata,
		}}
		t.sessions[sessionKey] = ts
		t.logger.Debug("usage session opened", zap.String("session", sessionKey))
	}
	return ts
}

// Begin opens a session if it does not exist yet and returns a snapshot.
func (t *Tracker) Begin(sessionKey string, metadata map[string]string) *Session {
	ts := t.acquire(sessionKey, metadata)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.session.clone()
}

// Record applies one request's actuals. Tokens, cost, and the model
// breakdown move together under the session lock so readers never see a
// partial update.
func (t *Tracker) Record(sessionKey string, params RecordParams) *Session {
	ts := t.acquire(sessionKey, nil)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	s := ts.session
	s.TotalRequests++
	if params.Success {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}
	s.TotalTokens += params.Usage.Total
	s.TotalCost += params.Cost
	s.LastActivityAt = time.Now()

	mu, ok := s.ModelBreakdown[params.ModelID]
	if !ok {
		mu = &ModelUsage{}
		s.ModelBreakdown[params.ModelID] = mu
	}
	mu.Requests++
	mu.Tokens += params.Usage.Total
	mu.Cost += params.Cost
	mu.TotalLatencyMS += params.LatencyMS
	if !params.Success {
		mu.Errors++
	}

	return s.clone()
}

// SessionCost returns the session's accumulated cost, zero when unknown.
func (t *Tracker) SessionCost(sessionKey string) float64 {
	t.mu.Lock()
	ts, ok := t.sessions[sessionKey]
	t.mu.Unlock()
	if !ok {
		return 0
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.session.TotalCost
}

// Get returns a snapshot, or nil when the session is unknown.
func (t *Tracker) Get(sessionKey string) *Session {
	t.mu.Lock()
	ts, ok := t.sessions[sessionKey]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.session.clone()
}

// Close completes or aborts a session. Closing twice is a no-op.
func (t *Tracker) Close(sessionKey string, aborted bool) *Session {
	t.mu.Lock()
	ts, ok := t.sessions[sessionKey]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	s := ts.session
	if s.Status == StatusActive {
		now := time.Now()
		s.CompletedAt = &now
		if aborted {
			s.Status = StatusAborted
		} else {
			s.Status = StatusCompleted
		}
	}
	return s.clone()
}

// List snapshots every tracked session.
func (t *Tracker) List() []*Session {
	t.mu.Lock()
	entries := make([]*trackedSession, 0, len(t.sessions))
	for _, ts := range t.sessions {
		entries = append(entries, ts)
	}
	t.mu.Unlock()

	out := make([]*Session, 0, len(entries))
	for _, ts := range entries {
		ts.mu.Lock()
		out = append(out, ts.session.clone())
		ts.mu.Unlock()
	}
	return out
}

// CloseIdle completes active sessions with no activity past maxIdle and
// returns how many it closed. The server runs this on a ticker.
func (t *Tracker) CloseIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	closed := 0
	for _, s := range t.List() {
		select {
		case <-ctx.Done():
			return closed
		default:
		}
		if s.Status == StatusActive && s.LastActivityAt.Before(cutoff) {
			t.Close(s.ID, false)
			closed++
			t.logger.Debug("idle usage session closed", zap.String("session", s.ID))
		}
	}
	return closed
}
