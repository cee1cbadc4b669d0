package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Record is one priced request on its way to Postgres.
type Record struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	SessionKey string    `json:"session_key"`
	Timestamp  time.Time `json:"timestamp"`

	// Period is the budget month the ledger charged, stamped at settlement
	// so the worker lands rows in the same month even across a reset
	// boundary.
	Period string `json:"period,omitempty"`

	Model    string `json:"model"`
	Provider string `json:"provider"`
	Tier     int    `json:"tier"`
	TaskType string `json:"task_type,omitempty"`

	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	TotalTokens     int `json:"total_tokens"`

	TotalCost       float64 `json:"total_cost"`
	FreeRequestUsed bool    `json:"free_request_used,omitempty"`
	FreeTokensUsed  int     `json:"free_tokens_used,omitempty"`

	LatencyMS     int64  `json:"latency_ms"`
	Success       bool   `json:"success"`
	ErrorCode     string `json:"error_code,omitempty"`
	Collaborative bool   `json:"collaborative,omitempty"`

	Retries int `json:"retries"`
}

// Queue buffers usage records in Redis so the request path never waits on
// Postgres. The worker drains it in batches.
type Queue struct {
	client     *redis.Client
	logger     *zap.Logger
	queueName  string
	batchSize  int
	maxRetries int
}

type QueueConfig struct {
	Client     *redis.Client
	Logger     *zap.Logger
	QueueName  string
	BatchSize  int
	MaxRetries int
}

func NewQueue(config *QueueConfig) *Queue {
	if config.QueueName == "" {
		config.QueueName = "usage:queue"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	return &Queue{
		client:     config.Client,
		logger:     config.Logger,
		queueName:  config.QueueName,
		batchSize:  config.BatchSize,
		maxRetries: config.MaxRetries,
	}
}

// Enqueue pushes one record. LPUSH pairs with the worker's RPOP for FIFO
// order.
func (q *Queue) Enqueue(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	if err := q.client.LPush(ctx, q.queueName, data).Err(); err != nil {
		q.logger.Error("failed to enqueue usage record",
			zap.String("record_id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to enqueue usage record: %w", err)
	}

	q.logger.Debug("usage record enqueued",
		zap.String("record_id", record.ID),
		zap.String("session", record.SessionKey),
		zap.Float64("cost", record.TotalCost))
	return nil
}

// DequeueBatch pops up to the configured batch size in FIFO order.
func (q *Queue) DequeueBatch(ctx context.Context) ([]*Record, error) {
	pipe := q.client.Pipeline()

	cmds := make([]*redis.StringCmd, 0, q.batchSize)
	for i := 0; i < q.batchSize; i++ {
		cmds = append(cmds, pipe.RPop(ctx, q.queueName))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to dequeue usage records: %w", err)
	}

	var records []*Record
	for _, cmd := range cmds {
		result, err := cmd.Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			q.logger.Error("error reading queued record", zap.Error(err))
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(result), &record); err != nil {
			q.logger.Error("failed to unmarshal usage record", zap.Error(err))
			continue
		}
		records = append(records, &record)
	}

	if len(records) > 0 {
		q.logger.Debug("dequeued usage batch", zap.Int("count", len(records)))
	}
	return records, nil
}

// EnqueueFailed schedules a retry with quadratic backoff, or parks the
// record in the dead letter queue once retries are exhausted. The returned
// bool reports a dead-lettered record.
func (q *Queue) EnqueueFailed(ctx context.Context, record *Record, errorMsg string) (bool, error) {
	record.Retries++

	if record.Retries >= q.maxRetries {
		return true, q.moveToDeadLetter(ctx, record, errorMsg)
	}

	retryDelay := time.Duration(record.Retries*record.Retries) * 10 * time.Second
	retryAt := time.Now().Add(retryDelay)

	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal failed record: %w", err)
	}

	if err := q.client.ZAdd(ctx, q.retryQueueName(), redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: data,
	}).Err(); err != nil {
		return false, fmt.Errorf("failed to enqueue retry record: %w", err)
	}

	q.logger.Warn("usage record queued for retry",
		zap.String("record_id", record.ID),
		zap.Int("retry_count", record.Retries),
		zap.Duration("delay", retryDelay),
		zap.String("error", errorMsg))
	return false, nil
}

// ProcessRetryQueue moves due retries back onto the main queue.
func (q *Queue) ProcessRetryQueue(ctx context.Context) error {
	now := float64(time.Now().Unix())

	records, err := q.client.ZRangeByScore(ctx, q.retryQueueName(), &redis.ZRangeBy{
		Min:   "0",
		Max:   fmt.Sprintf("%.0f", now),
		Count: int64(q.batchSize),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get retry records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, data := range records {
		pipe.LPush(ctx, q.queueName, data)
		pipe.ZRem(ctx, q.retryQueueName(), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move retry records: %w", err)
	}

	q.logger.Info("retry records moved back to main queue", zap.Int("count", len(records)))
	return nil
}

func (q *Queue) moveToDeadLetter(ctx context.Context, record *Record, errorMsg string) error {
	entry := map[string]interface{}{
		"record":      record,
		"error":       errorMsg,
		"failed_at":   time.Now(),
		"final_retry": record.Retries,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter record: %w", err)
	}

	if err := q.client.LPush(ctx, q.deadLetterQueueName(), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue dead letter record: %w", err)
	}

	q.logger.Error("usage record moved to dead letter queue",
		zap.String("record_id", record.ID),
		zap.Int("retries", record.Retries),
		zap.String("error", errorMsg))
	return nil
}

// Stats reports the depth of each queue.
type Stats struct {
	MainQueue       int64 `json:"main_queue"`
	RetryQueue      int64 `json:"retry_queue"`
	DeadLetterQueue int64 `json:"dead_letter_queue"`
	TotalPending    int64 `json:"total_pending"`
}

func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()

	mainCmd := pipe.LLen(ctx, q.queueName)
	retryCmd := pipe.ZCard(ctx, q.retryQueueName())
	deadCmd := pipe.LLen(ctx, q.deadLetterQueueName())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	mainCount, _ := mainCmd.Result()
	retryCount, _ := retryCmd.Result()
	deadCount, _ := deadCmd.Result()

	return &Stats{
		MainQueue:       mainCount,
		RetryQueue:      retryCount,
		DeadLetterQueue: deadCount,
		TotalPending:    mainCount + retryCount,
	}, nil
}

// HealthCheck round-trips a test key.
func (q *Queue) HealthCheck(ctx context.Context) error {
	testKey := q.queueName + ":healthcheck"
	if err := q.client.Set(ctx, testKey, "ok", time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}

	val, err := q.client.Get(ctx, testKey).Result()
	if err != nil {
		return fmt.Errorf("redis read failed: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("redis data integrity check failed")
	}

	q.client.Del(ctx, testKey)
	return nil
}

func (q *Queue) retryQueueName() string      { return q.queueName + ":retry" }
func (q *Queue) deadLetterQueueName() string { return q.queueName + ":dead_letter" }
