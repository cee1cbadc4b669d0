package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

const (
	turnsKeyPrefix = "conversation:turns:"
	countKeyPrefix = "conversation:count:"
)

// RedisStore shares conversation context across instances. Turns live in a
// list trimmed to the window; the lifetime counter is a separate key so
// TurnCount survives trimming.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
	window int
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, window int, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if window <= 0 {
		window = 5
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, logger: logger, window: window, ttl: ttl}
}

func (s *RedisStore) BuildContext(ctx context.Context, conversationID string) (*domain.ConversationContext, error) {
	// Newest first in the list.
	raw, err := s.client.LRange(ctx, turnsKeyPrefix+conversationID, 0, int64(s.window-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read conversation turns: %w", err)
	}
	if len(raw) == 0 {
		return &domain.ConversationContext{}, nil
	}

	turns := make([]domain.ConversationTurn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var turn domain.ConversationTurn
		if unmarshalErr := json.Unmarshal([]byte(raw[i]), &turn); unmarshalErr != nil {
			s.logger.Warn("corrupt conversation turn skipped",
				zap.String("conversation_id", conversationID))
			continue
		}
		turns = append(turns, turn)
	}

	count, err := s.client.Get(ctx, countKeyPrefix+conversationID).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read conversation count: %w", err)
	}
	if count < len(turns) {
		count = len(turns)
	}

	out := &domain.ConversationContext{
		PreviousResponses: turns,
		TurnCount:         count,
	}
	if len(turns) > 0 {
		out.CurrentComplexityLevel = turns[len(turns)-1].Complexity
	}
	return out, nil
}

func (s *RedisStore) AddTurn(ctx context.Context, conversationID string, turn domain.ConversationTurn) error {
	turn.Response = truncateResponse(turn.Response)
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation turn: %w", err)
	}

	turnsKey := turnsKeyPrefix + conversationID
	countKey := countKeyPrefix + conversationID

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, turnsKey, data)
	pipe.LTrim(ctx, turnsKey, 0, int64(s.window-1))
	pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, turnsKey, s.ttl)
	pipe.Expire(ctx, countKey, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}
	return nil
}
