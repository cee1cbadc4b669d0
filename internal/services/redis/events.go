package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType labels a settlement stream entry.
type EventType string

const (
	EventTypeSettlement    EventType = "settlement"
	EventTypeFreeTierReset EventType = "freetier_reset"
	EventTypeDeadLetter    EventType = "dead_letter"
)

// Event is one entry on the settlement stream. External consumers follow
// the stream to audit what the reconciliation worker persisted.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

const settlementStream = "orchestrator:settlement_events"

// EventPublisher appends settlement events to a capped Redis stream.
type EventPublisher struct {
	client *redis.Client
	logger *zap.Logger
	source string
}

func NewEventPublisher(client *redis.Client, source string, logger *zap.Logger) *EventPublisher {
	if source == "" {
		source = "orchestrator"
	}
	return &EventPublisher{client: client, logger: logger, source: source}
}

// PublishSettlement records one persisted batch: how many usage records
// landed and the cost they carried.
func (ep *EventPublisher) PublishSettlement(ctx context.Context, period string, records int, totalCost float64) error {
	return ep.publish(ctx, Event{
		Type: EventTypeSettlement,
		Data: map[string]interface{}{
			"period":     period,
			"records":    records,
			"total_cost": totalCost,
		},
	})
}

// PublishFreeTierReset marks the start of a model's new free-tier cycle.
func (ep *EventPublisher) PublishFreeTierReset(ctx context.Context, modelID, date string) error {
	return ep.publish(ctx, Event{
		Type: EventTypeFreeTierReset,
		Data: map[string]interface{}{
			"model": modelID,
			"date":  date,
		},
	})
}

// PublishDeadLetter flags records parked after exhausting persist retries so
// an operator can intervene.
func (ep *EventPublisher) PublishDeadLetter(ctx context.Context, recordID, reason string) error {
	return ep.publish(ctx, Event{
		Type: EventTypeDeadLetter,
		Data: map[string]interface{}{
			"record_id": recordID,
			"reason":    reason,
		},
	})
}

func (ep *EventPublisher) publish(ctx context.Context, event Event) error {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()
	event.Source = ep.source

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Approximate trimming keeps XADD O(1); the stream is a window, not an
	// archive.
	err = ep.client.XAdd(ctx, &redis.XAddArgs{
		Stream: settlementStream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"data":       string(data),
		},
	}).Err()
	if err != nil {
		ep.logger.Warn("settlement event not published",
			zap.String("type", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}
