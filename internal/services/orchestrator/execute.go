package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/retry"
)

const (
	defaultTemperature = 0.7
	defaultTopP        = 1.0
)

// ExecuteOn runs one generation on a specific model: timeout envelope,
// retry on transient provider errors, breaker bookkeeping, accounting, and
// metrics. The quality controller and the collaborative orchestrator call
// back into this method, so the ledger sees every adapter call exactly once.
func (s *Service) ExecuteOn(ctx context.Context, req *domain.Request, model domain.Model) (*domain.Response, error) {
	start := time.Now()

	m, adapter, err := s.registry.Get(model.ID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Routing.Timeout)
	defer cancel()

	opts := providers.Options{
		MaxTokens:   m.MaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		Timeout:     s.cfg.Routing.Timeout,
		Metadata:    req.UserMetadata,
	}

	var result *providers.Result
	err = retry.Do(callCtx, s.retryCfg, func(ctx context.Context) error {
		r, gerr := adapter.Generate(ctx, req.Prompt, opts)
		if gerr != nil {
			return gerr
		}
		result = r
		return nil
	}, retry.DefaultIsRetryable)

	latency := sinceMS(start)
	if err != nil {
		return s.failedCall(ctx, req, m, err, latency)
	}

	s.registry.RecordSuccess(m.ID)
	cost := s.settle(ctx, req, m, result.Usage, latency, true, "")
	s.observeCall(m, result.Usage, cost.TotalCost, latency, true)

	return &domain.Response{
		Success:    true,
		ModelUsed:  m.ID,
		TierUsed:   m.Tier,
		Text:       result.Text,
		TokenUsage: result.Usage,
		Cost:       cost,
		LatencyMS:  latency,
	}, nil
}

// failedCall settles a provider failure: zero usage, the taxonomy code, and
// the measured latency all still land in the ledger and the session.
func (s *Service) failedCall(ctx context.Context, req *domain.Request, m domain.Model, err error, latency int64) (*domain.Response, error) {
	s.registry.RecordFailure(m.ID)

	derr := domain.AsError(err)
	if derr.Code == domain.CodeOrchestratorError && errors.Is(err, context.DeadlineExceeded) {
		derr = domain.Errorf(domain.CodeTimeout, "%s exceeded %v envelope", m.ID, s.cfg.Routing.Timeout).WithCause(err)
	}

	s.settle(ctx, req, m, domain.TokenUsage{}, latency, false, derr.Code)
	s.observeCall(m, domain.TokenUsage{}, 0, latency, false)

	s.logger.Warn("generation failed",
		zap.String("model", m.ID),
		zap.String("code", string(derr.Code)),
		zap.Int64("latency_ms", latency),
		zap.Error(derr))

	resp := domain.ErrorResponse(derr, latency)
	resp.ModelUsed = m.ID
	resp.TierUsed = m.Tier
	return &resp, derr
}

// settle commits one adapter call to budget accounting and returns the
// authoritative charge. It runs on a detached context: the call already
// happened, so cancellation of the inbound request must not lose the charge.
func (s *Service) settle(ctx context.Context, req *domain.Request, m domain.Model, usage domain.TokenUsage, latency int64, success bool, code domain.Code) domain.CostBreakdown {
	if s.budget == nil {
		return domain.ZeroCost()
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	breakdown, err := s.budget.PostRequestProcessing(actx, budget.PostParams{
		SessionKey:    req.SessionID,
		RequestID:     uuid.NewString(),
		ModelID:       m.ID,
		Provider:      string(m.Provider),
		Tier:          m.Tier,
		TaskType:      string(req.TaskType),
		Usage:         usage,
		LatencyMS:     latency,
		Success:       success,
		ErrorCode:     code,
		Collaborative: req.UserMetadata["subtask_id"] != "",
	})
	if err != nil {
		s.logger.Error("post-request accounting failed",
			zap.String("model", m.ID), zap.Error(err))
		return domain.ZeroCost()
	}
	return breakdown
}
