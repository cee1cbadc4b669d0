package quality

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// Executor re-runs a request on a specific model. The orchestrator
// implements it; the controller never talks to adapters directly.
type Executor interface {
	ExecuteOn(ctx context.Context, req *domain.Request, model domain.Model) (*domain.Response, error)
}

// Controller decides what happens to a response after generation: cascade
// to a higher tier on failure, or refine a passing low-tier answer.
type Controller struct {
	quality  config.QualityConfig
	collab   config.CollabConfig
	logger   *zap.Logger
	registry *registry.Registry
	exec     Executor
}

func New(qcfg config.QualityConfig, ccfg config.CollabConfig, reg *registry.Registry, exec Executor, logger *zap.Logger) *Controller {
	return &Controller{
		quality:  qcfg,
		collab:   ccfg,
		logger:   logger.Named("quality"),
		registry: reg,
		exec:     exec,
	}
}

// ShouldCascade reports whether the response is bad enough to redo on a
// higher tier. confidence is the analyzer's confidence for the request.
func (c *Controller) ShouldCascade(resp *domain.Response, confidence float64) bool {
	if !c.collab.CascadeEnabled || resp == nil {
		return false
	}
	if !resp.Success {
		return true
	}
	if len(resp.Text) < c.quality.MinResponseLength {
		return true
	}
	return confidence < c.quality.MinConfidence
}

// ShouldRefine reports whether a passing response warrants a second pass on
// a higher tier. Tier-zero output only qualifies when it carries code; the
// cheapest models are trusted for prose but not for shippable snippets.
func (c *Controller) ShouldRefine(resp *domain.Response, model domain.Model) bool {
	if !c.collab.RefinementEnabled || resp == nil || !resp.Success {
		return false
	}
	if model.Tier >= domain.MaxTier {
		return false
	}
	if model.Tier == 0 && !containsCodeBlock(resp.Text) {
		return false
	}
	return true
}

// Cascade re-executes the request on the lowest healthy tier above the
// failed model. When no higher tier is available, or the retry itself
// errors, the original response comes back unchanged.
func (c *Controller) Cascade(ctx context.Context, req *domain.Request, failed domain.Model, failedResp *domain.Response) *domain.Response {
	next, ok := c.nextTierModel(failed.Tier)
	if !ok {
		c.logger.Warn("cascade requested but no healthy higher tier",
			zap.String("model", failed.ID),
			zap.Int("tier", failed.Tier))
		return failedResp
	}

	c.logger.Info("cascading to higher tier",
		zap.String("from", failed.ID),
		zap.String("to", next.ID),
		zap.Int("from_tier", failed.Tier),
		zap.Int("to_tier", next.Tier))

	resp, err := c.exec.ExecuteOn(ctx, req, next)
	if err != nil || resp == nil {
		c.logger.Warn("cascade execution failed, keeping original response",
			zap.String("model", next.ID),
			zap.Error(err))
		return failedResp
	}

	resp.FallbackUsed = true
	resp.TierEscalated = true
	resp.Cost = resp.Cost.Add(failedResp.Cost)
	return resp
}

// Refine submits the base answer to the lowest healthy higher tier with a
// prompt asking for an improved version. Cost accumulates across both
// passes. Any failure keeps the base response.
func (c *Controller) Refine(ctx context.Context, req *domain.Request, baseModel domain.Model, base *domain.Response) *domain.Response {
	next, ok := c.nextTierModel(baseModel.Tier)
	if !ok {
		return base
	}

	refineReq := &domain.Request{
		Prompt:         refinementPrompt(req.Prompt, base.Text),
		TaskType:       req.TaskType,
		ConversationID: req.ConversationID,
		SessionID:      req.SessionID,
	}

	c.logger.Info("refining response on higher tier",
		zap.String("base_model", baseModel.ID),
		zap.String("refiner", next.ID))

	resp, err := c.exec.ExecuteOn(ctx, refineReq, next)
	if err != nil || resp == nil || !resp.Success {
		c.logger.Warn("refinement failed, keeping base response",
			zap.String("refiner", next.ID),
			zap.Error(err))
		return base
	}

	resp.Cost = resp.Cost.Add(base.Cost)
	return resp
}

// nextTierModel picks the lowest healthy tier strictly above the given one.
// Within a tier the lexically first id wins so retries are deterministic.
func (c *Controller) nextTierModel(tier int) (domain.Model, bool) {
	byTier := c.registry.HealthyByTier()
	for t := tier + 1; t <= domain.MaxTier; t++ {
		models := byTier[t]
		if len(models) == 0 {
			continue
		}
		best := models[0]
		for _, m := range models[1:] {
			if m.ID < best.ID {
				best = m
			}
		}
		return best, true
	}
	return domain.Model{}, false
}

func containsCodeBlock(text string) bool {
	return strings.Contains(text, "```")
}

func refinementPrompt(original, baseText string) string {
	return fmt.Sprintf(
		"Improve the following answer. Keep what is correct, fix what is wrong, and tighten the result.\n\nOriginal request:\n%s\n\nCurrent answer:\n%s",
		original, baseText)
}
