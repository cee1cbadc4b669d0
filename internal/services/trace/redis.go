package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
)

const (
	analysisKeyPrefix = "trace:analysis:"
	errorKeyPrefix    = "trace:errors:"
	metricsKeyPrefix  = "metrics:models:"
	costTablePrefix   = "cost_table:"

	metricsFieldRequests  = "requests"
	metricsFieldSuccesses = "successes"
	metricsFieldFailures  = "failures"
	metricsFieldLatency   = "total_latency_ms"
	metricsFieldCost      = "total_cost"

	costFieldTotal    = "total"
	costFieldRequests = "requests"
	costModelPrefix   = "model:"
)

// RedisSink stores traces in Redis with per-kind TTLs. Analysis traces are
// short-lived while metrics and cost rollups survive a month.
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger

	analysisTTL time.Duration
	metricsTTL  time.Duration
	costTTL     time.Duration
}

func NewRedisSink(client *redis.Client, cfg config.TraceConfig, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		client:      client,
		logger:      logger,
		analysisTTL: cfg.AnalysisTTL,
		metricsTTL:  cfg.MetricsTTL,
		costTTL:     cfg.DailyCostsTTL,
	}
}

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

// LogAnalysis writes the per-request routing trace.
func (s *RedisSink) LogAnalysis(ctx context.Context, rec AnalysisRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis record: %w", err)
	}

	key := analysisKeyPrefix + day(rec.CreatedAt) + ":" + rec.RequestID
	if err := s.client.Set(ctx, key, data, s.analysisTTL).Err(); err != nil {
		s.logger.Warn("analysis trace write failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateModelMetrics bumps the rolling counters for a model and feeds the
// same request into today's cost table.
func (s *RedisSink) UpdateModelMetrics(ctx context.Context, modelID string, latencyMS int64, cost float64, success bool) error {
	metricsKey := metricsKeyPrefix + modelID
	costKey := costTablePrefix + day(time.Now())

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, metricsKey, metricsFieldRequests, 1)
	if success {
		pipe.HIncrBy(ctx, metricsKey, metricsFieldSuccesses, 1)
	} else {
		pipe.HIncrBy(ctx, metricsKey, metricsFieldFailures, 1)
	}
	pipe.HIncrBy(ctx, metricsKey, metricsFieldLatency, latencyMS)
	pipe.HIncrByFloat(ctx, metricsKey, metricsFieldCost, cost)
	pipe.Expire(ctx, metricsKey, s.metricsTTL)

	pipe.HIncrBy(ctx, costKey, costFieldRequests, 1)
	pipe.HIncrByFloat(ctx, costKey, costFieldTotal, cost)
	pipe.HIncrByFloat(ctx, costKey, costModelPrefix+modelID, cost)
	pipe.Expire(ctx, costKey, s.costTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("model metrics update failed",
			zap.String("model", modelID), zap.Error(err))
		return err
	}
	return nil
}

// TrackError appends an error event to today's error log.
func (s *RedisSink) TrackError(ctx context.Context, kind, message string, fields map[string]string) error {
	entry := map[string]interface{}{
		"kind":      kind,
		"message":   message,
		"fields":    fields,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal error event: %w", err)
	}

	key := errorKeyPrefix + day(time.Now())
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, 999)
	pipe.Expire(ctx, key, s.analysisTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("error trace write failed", zap.String("kind", kind), zap.Error(err))
		return err
	}
	return nil
}

// UpdateDailyCosts recomputes today's total from the per-model fields so the
// table self-heals after partial writes, and refreshes the TTL.
func (s *RedisSink) UpdateDailyCosts(ctx context.Context) error {
	key := costTablePrefix + day(time.Now())

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	var total float64
	for field, raw := range fields {
		if len(field) <= len(costModelPrefix) || field[:len(costModelPrefix)] != costModelPrefix {
			continue
		}
		v, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			continue
		}
		total += v
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, costFieldTotal, total)
	pipe.Expire(ctx, key, s.costTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RealTimeMetrics scans the model counters and today's cost table.
func (s *RedisSink) RealTimeMetrics(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		GeneratedAt: time.Now(),
		Models:      make(map[string]ModelMetrics),
		Today: DailyCosts{
			Date:     day(time.Now()),
			PerModel: make(map[string]float64),
		},
	}

	keys, err := s.client.Keys(ctx, metricsKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			s.logger.Warn("metrics read failed", zap.String("key", key), zap.Error(err))
			continue
		}
		snap.Models[key[len(metricsKeyPrefix):]] = parseModelMetrics(fields)
	}

	costFields, err := s.client.HGetAll(ctx, costTablePrefix+snap.Today.Date).Result()
	if err != nil {
		return nil, err
	}
	for field, raw := range costFields {
		switch {
		case field == costFieldTotal:
			snap.Today.TotalCost, _ = strconv.ParseFloat(raw, 64)
		case field == costFieldRequests:
			snap.Today.Requests, _ = strconv.ParseInt(raw, 10, 64)
		case len(field) > len(costModelPrefix) && field[:len(costModelPrefix)] == costModelPrefix:
			v, parseErr := strconv.ParseFloat(raw, 64)
			if parseErr == nil {
				snap.Today.PerModel[field[len(costModelPrefix):]] = v
			}
		}
	}
	return snap, nil
}

func parseModelMetrics(fields map[string]string) ModelMetrics {
	var m ModelMetrics
	m.Requests, _ = strconv.ParseInt(fields[metricsFieldRequests], 10, 64)
	m.Successes, _ = strconv.ParseInt(fields[metricsFieldSuccesses], 10, 64)
	m.Failures, _ = strconv.ParseInt(fields[metricsFieldFailures], 10, 64)
	m.TotalLatencyMS, _ = strconv.ParseInt(fields[metricsFieldLatency], 10, 64)
	m.TotalCost, _ = strconv.ParseFloat(fields[metricsFieldCost], 64)
	return m
}
