// Package conversation persists multi-turn context consumed by the query
// analyzer. The router reads a window of recent turns; full transcripts are
// never kept here.
package conversation

import (
	"context"
	"sync"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Stored responses are truncated so a long generation does not bloat every
// later analysis of the same conversation.
const maxStoredResponseChars = 2000

// Store is the conversation store contract.
type Store interface {
	// BuildContext returns the recent-turn window for a conversation. An
	// unknown id yields an empty context, not an error.
	BuildContext(ctx context.Context, conversationID string) (*domain.ConversationContext, error)
	// AddTurn appends a completed exchange.
	AddTurn(ctx context.Context, conversationID string, turn domain.ConversationTurn) error
}

func truncateResponse(s string) string {
	if len(s) > maxStoredResponseChars {
		return s[:maxStoredResponseChars]
	}
	return s
}

// MemoryStore keeps conversations in process memory. Single-node only;
// the Redis store replaces it whenever Redis is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	window int
	convs  map[string]*memoryConversation
}

type memoryConversation struct {
	turns []domain.ConversationTurn
	count int
}

func NewMemoryStore(window int) *MemoryStore {
	if window <= 0 {
		window = 5
	}
	return &MemoryStore{
		window: window,
		convs:  make(map[string]*memoryConversation),
	}
}

func (s *MemoryStore) BuildContext(_ context.Context, conversationID string) (*domain.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return &domain.ConversationContext{}, nil
	}

	turns := make([]domain.ConversationTurn, len(conv.turns))
	copy(turns, conv.turns)

	out := &domain.ConversationContext{
		PreviousResponses: turns,
		TurnCount:         conv.count,
	}
	if len(turns) > 0 {
		out.CurrentComplexityLevel = turns[len(turns)-1].Complexity
	}
	return out, nil
}

func (s *MemoryStore) AddTurn(_ context.Context, conversationID string, turn domain.ConversationTurn) error {
	turn.Response = truncateResponse(turn.Response)

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		conv = &memoryConversation{}
		s.convs[conversationID] = conv
	}
	conv.turns = append(conv.turns, turn)
	if len(conv.turns) > s.window {
		conv.turns = conv.turns[len(conv.turns)-s.window:]
	}
	conv.count++
	return nil
}
