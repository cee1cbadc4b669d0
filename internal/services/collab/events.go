package collab

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventPlanReady        EventType = "plan_ready"
	EventSubtaskStarted   EventType = "subtask_started"
	EventSubtaskRetry     EventType = "subtask_retry"
	EventSubtaskDone      EventType = "subtask_done"
	EventSubtaskFailed    EventType = "subtask_failed"
	EventGateResult       EventType = "gate_result"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
)

// SessionEvent is one progress update from a running coding session.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	SubtaskID string    `json:"subtask_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	id int
	ch chan SessionEvent
}

// Hub fans session events out to WebSocket subscribers. Publishing never
// blocks: a subscriber whose buffer is full loses the event.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscriber
}

const subscriberBuffer = 64

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("collab.hub"),
		subs:   map[string][]subscriber{},
	}
}

// Subscribe registers for one session's events. The returned cancel func
// must be called when the consumer goes away; it closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan SessionEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := subscriber{id: h.nextID, ch: make(chan SessionEvent, subscriberBuffer)}
	h.subs[sessionID] = append(h.subs[sessionID], sub)

	id := sub.id
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[sessionID]
		for i, s := range list {
			if s.id == id {
				h.subs[sessionID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				break
			}
		}
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
	}
	return sub.ch, cancel
}

// Publish delivers the event to every live subscriber of its session.
func (h *Hub) Publish(evt SessionEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[evt.SessionID] {
		select {
		case sub.ch <- evt:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				zap.String("session_id", evt.SessionID),
				zap.String("type", string(evt.Type)))
		}
	}
}
