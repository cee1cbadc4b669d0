package collab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// Invoker runs one prompt on one chosen model. The request orchestrator
// implements it with the full pricing and usage pipeline, so every subtask
// call is admitted, charged, and traced like a normal request.
type Invoker interface {
	ExecuteOn(ctx context.Context, req *domain.Request, model domain.Model) (*domain.Response, error)
}

// Orchestrator drives a collaborative coding session: decompose, classify,
// execute in dependency order, gate each result, and re-review at the end.
type Orchestrator struct {
	cfg        config.CollabConfig
	logger     *zap.Logger
	registry   *registry.Registry
	invoker    Invoker
	decomposer *Decomposer
	classifier *Classifier
	gate       *Gate
	hub        *Hub
}

func NewOrchestrator(cfg config.CollabConfig, reg *registry.Registry, invoker Invoker, an *analyzer.Analyzer, hub *Hub, logger *zap.Logger) *Orchestrator {
	logger = logger.Named("collab")
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		invoker:    invoker,
		decomposer: NewDecomposer(logger),
		classifier: NewClassifier(cfg.DifficultyThreshold, an, logger),
		gate:       NewGate(cfg, logger),
		hub:        hub,
	}
}

// Classifier exposes the difficulty classifier so callers can feed fleet
// performance back into the threshold.
func (o *Orchestrator) Classifier() *Classifier { return o.classifier }

// Run executes one collaborative session to a terminal status. Plan-level
// failures (bad decomposition, cycle, subtask budget) are recorded on the
// returned session rather than surfaced as errors.
func (o *Orchestrator) Run(ctx context.Context, req *domain.Request) (*domain.CodingSession, error) {
	return o.RunWithID(ctx, req, uuid.NewString())
}

// RunWithID runs a session under a caller-assigned id, so streaming
// consumers can subscribe to the hub before execution starts.
func (o *Orchestrator) RunWithID(ctx context.Context, req *domain.Request, sessionID string) (*domain.CodingSession, error) {
	if req == nil {
		return nil, domain.NewError(domain.CodeOrchestratorError, "nil request")
	}
	start := time.Now()

	session := &domain.CodingSession{
		ID:             sessionID,
		OriginalPrompt: req.Prompt,
		Status:         domain.CodingPlanning,
		CreatedAt:      start,
		UpdatedAt:      start,
	}
	o.hub.Publish(SessionEvent{SessionID: session.ID, Type: EventSessionStarted})

	plan, err := o.decomposer.Decompose(domain.DecompositionRequest{
		OriginalPrompt: req.Prompt,
		TargetLanguage: req.UserMetadata["language"],
		MaxSubtasks:    o.cfg.MaxSubtasks,
	})
	if err != nil {
		return o.failSession(session, start, "decomposition failed: "+err.Error()), nil
	}

	var warnings []string
	plan.Subtasks, warnings = o.classifier.ClassifyBatch(plan.Subtasks)
	for _, w := range warnings {
		o.logger.Warn("difficulty distribution warning",
			zap.String("session_id", session.ID),
			zap.String("warning", w))
	}

	if issues := o.decomposer.Validate(plan, o.cfg.MaxSubtasks); len(issues) > 0 {
		return o.failSession(session, start, "invalid plan: "+strings.Join(issues, "; ")), nil
	}

	session.Plan = plan
	session.TargetLanguage = plan.Subtasks[0].Language
	session.RefreshProgress()
	o.hub.Publish(SessionEvent{
		SessionID: session.ID,
		Type:      EventPlanReady,
		Message:   fmt.Sprintf("%d subtasks, ~%d lines", len(plan.Subtasks), plan.TotalEstimatedLOC),
	})

	session.Status = domain.CodingExecuting
	exec := &execution{o: o, session: session}
	for _, wave := range topoWaves(plan.Subtasks) {
		if ctx.Err() != nil {
			return o.failSession(session, start, "cancelled during execution"), nil
		}
		exec.runWave(ctx, wave)
		exec.refresh()
	}

	o.finalReview(session)
	session.Metrics.TotalTimeMS = sinceMS(start)
	session.UpdatedAt = time.Now()

	if session.Progress.Failed > 0 {
		session.Status = domain.CodingFailed
		session.Error = failedSubtaskSummary(plan)
		o.hub.Publish(SessionEvent{SessionID: session.ID, Type: EventSessionFailed, Message: session.Error})
	} else {
		session.Status = domain.CodingCompleted
		o.hub.Publish(SessionEvent{
			SessionID: session.ID,
			Type:      EventSessionCompleted,
			Score:     session.Metrics.QualityScore,
		})
	}

	o.logger.Info("collaborative session finished",
		zap.String("session_id", session.ID),
		zap.String("status", string(session.Status)),
		zap.Int("completed", session.Progress.Completed),
		zap.Int("failed", session.Progress.Failed),
		zap.Float64("quality_score", session.Metrics.QualityScore),
		zap.Float64("total_cost", session.Metrics.TotalCost))
	return session, nil
}

// finalReview re-reviews every done subtask and sets the session quality
// score to the mean.
func (o *Orchestrator) finalReview(session *domain.CodingSession) {
	if session.Plan == nil {
		return
	}
	session.Status = domain.CodingReviewing

	sum := 0.0
	n := 0
	agg := &domain.QualityReview{CheckScores: map[string]float64{}}
	for i := range session.Plan.Subtasks {
		sub := &session.Plan.Subtasks[i]
		if sub.Status != domain.SubtaskDone || sub.Result == nil {
			continue
		}
		review := o.gate.Review(sub, sub.Result)
		agg.CheckScores[sub.ID] = review.Score
		agg.Issues = append(agg.Issues, review.Issues...)
		sum += review.Score
		n++
	}
	if n > 0 {
		agg.Score = sum / float64(n)
		agg.Passed = session.Progress.Failed == 0 && agg.Score >= o.cfg.MinScore
		session.Metrics.QualityScore = agg.Score
		session.FinalReview = agg
	}
	session.RefreshProgress()
}

func (o *Orchestrator) failSession(session *domain.CodingSession, start time.Time, reason string) *domain.CodingSession {
	session.Status = domain.CodingFailed
	session.Error = reason
	session.Metrics.TotalTimeMS = sinceMS(start)
	session.UpdatedAt = time.Now()
	session.RefreshProgress()
	o.hub.Publish(SessionEvent{SessionID: session.ID, Type: EventSessionFailed, Message: reason})
	o.logger.Warn("collaborative session failed",
		zap.String("session_id", session.ID),
		zap.String("reason", reason))
	return session
}

// execution is the per-run mutable state. Parallel easy subtasks share the
// session through mu.
type execution struct {
	o       *Orchestrator
	session *domain.CodingSession
	mu      sync.Mutex
}

// runWave executes one dependency level. Easy subtasks may run concurrently
// when parallel execution is on; hard ones always run sequentially so
// expensive calls stay bounded.
func (e *execution) runWave(ctx context.Context, wave []*domain.Subtask) {
	var parallel []*domain.Subtask
	var serial []*domain.Subtask
	for _, sub := range wave {
		if e.o.cfg.ParallelEnabled && sub.Difficulty == domain.DifficultyEasy {
			parallel = append(parallel, sub)
		} else {
			serial = append(serial, sub)
		}
	}
	if len(parallel) == 1 {
		serial = append(parallel, serial...)
		parallel = nil
	}

	var wg sync.WaitGroup
	for _, sub := range parallel {
		wg.Add(1)
		go func(sub *domain.Subtask) {
			defer wg.Done()
			e.executeSubtask(ctx, sub)
		}(sub)
	}
	wg.Wait()

	for _, sub := range serial {
		e.executeSubtask(ctx, sub)
	}
}

func (e *execution) executeSubtask(ctx context.Context, sub *domain.Subtask) {
	o := e.o
	session := e.session

	if blocked := e.blockedBy(sub); blocked != "" {
		e.mu.Lock()
		sub.Status = domain.SubtaskFailed
		sub.Feedback = append(sub.Feedback, "not started: dependency "+blocked+" did not complete")
		e.mu.Unlock()
		o.hub.Publish(SessionEvent{
			SessionID: session.ID, Type: EventSubtaskFailed, SubtaskID: sub.ID,
			Message: "dependency " + blocked + " did not complete",
		})
		return
	}

	for {
		e.mu.Lock()
		sub.Status = domain.SubtaskInProgress
		retry := sub.RetryCount
		difficulty := sub.Difficulty
		e.mu.Unlock()

		evtType := EventSubtaskStarted
		if retry > 0 {
			evtType = EventSubtaskRetry
		}
		o.hub.Publish(SessionEvent{SessionID: session.ID, Type: evtType, SubtaskID: sub.ID, Status: string(difficulty)})

		model, ok := o.pickModel(difficulty)
		if !ok {
			e.fail(sub, "no healthy coding-capable model available")
			return
		}

		resp, err := o.invoker.ExecuteOn(ctx, &domain.Request{
			Prompt:    e.subtaskPrompt(sub),
			TaskType:  domain.TaskCoding,
			SessionID: session.ID,
			UserMetadata: map[string]string{
				"language":   sub.Language,
				"subtask_id": sub.ID,
			},
		}, model)

		if resp != nil {
			e.recordCall(model, resp)
		}
		if err != nil || resp == nil || !resp.Success {
			if !e.retryAfterFailure(sub, model, err, resp) {
				return
			}
			continue
		}

		code, explanation := SplitCode(resp.Text)
		result := &domain.SubtaskResult{
			Code:        code,
			Explanation: explanation,
			ModelID:     model.ID,
			Tier:        model.Tier,
			Usage:       resp.TokenUsage,
			Cost:        resp.Cost,
			LatencyMS:   resp.LatencyMS,
		}

		e.mu.Lock()
		sub.Result = result
		sub.Status = domain.SubtaskReview
		e.mu.Unlock()

		review := o.gate.Review(sub, result)
		o.hub.Publish(SessionEvent{
			SessionID: session.ID, Type: EventGateResult, SubtaskID: sub.ID,
			Score: review.Score, Message: fmt.Sprintf("passed=%v issues=%d", review.Passed, len(review.Issues)),
		})

		if review.Passed {
			e.mu.Lock()
			sub.Status = domain.SubtaskDone
			e.mu.Unlock()
			o.classifier.RecordOutcome(sub.Category, true)
			o.hub.Publish(SessionEvent{SessionID: session.ID, Type: EventSubtaskDone, SubtaskID: sub.ID, Score: review.Score})
			return
		}

		e.mu.Lock()
		canRetry := review.RequiresRevision && sub.RetryCount < o.cfg.MaxRetries
		if canRetry {
			sub.RetryCount++
			sub.Feedback = append(sub.Feedback, review.Comments...)
			sub.Status = domain.SubtaskRetry
			if o.cfg.AutoEscalateAfterRetries > 0 && sub.RetryCount >= o.cfg.AutoEscalateAfterRetries && sub.Difficulty == domain.DifficultyEasy {
				sub.Difficulty = domain.DifficultyHard
			}
		}
		e.mu.Unlock()
		if canRetry {
			continue
		}

		e.fail(sub, fmt.Sprintf("gate score %.1f below passing after %d attempts", review.Score, sub.RetryCount+1))
		return
	}
}

// retryAfterFailure handles an adapter-level failure. Returns false when the
// subtask is terminally failed.
func (e *execution) retryAfterFailure(sub *domain.Subtask, model domain.Model, err error, resp *domain.Response) bool {
	o := e.o
	reason := "generation failed"
	if err != nil {
		reason = err.Error()
	} else if resp != nil && resp.Error != nil {
		reason = resp.Error.Message
	}

	e.mu.Lock()
	sub.RetryCount++
	escalated := false
	if o.cfg.AutoEscalateAfterRetries > 0 && sub.RetryCount >= o.cfg.AutoEscalateAfterRetries && sub.Difficulty == domain.DifficultyEasy {
		sub.Difficulty = domain.DifficultyHard
		escalated = true
	}
	exhausted := sub.RetryCount > o.cfg.MaxRetries
	if exhausted {
		sub.Status = domain.SubtaskFailed
		sub.Feedback = append(sub.Feedback, "generation failed on "+model.ID+": "+reason)
	}
	e.mu.Unlock()

	if escalated {
		o.logger.Info("escalating subtask after repeated failures",
			zap.String("session_id", e.session.ID),
			zap.String("subtask", sub.ID))
	}
	if exhausted {
		o.classifier.RecordOutcome(sub.Category, false)
		o.hub.Publish(SessionEvent{SessionID: e.session.ID, Type: EventSubtaskFailed, SubtaskID: sub.ID, Message: reason})
		return false
	}
	return true
}

func (e *execution) fail(sub *domain.Subtask, reason string) {
	e.mu.Lock()
	sub.Status = domain.SubtaskFailed
	sub.Feedback = append(sub.Feedback, reason)
	e.mu.Unlock()
	e.o.classifier.RecordOutcome(sub.Category, false)
	e.o.hub.Publish(SessionEvent{SessionID: e.session.ID, Type: EventSubtaskFailed, SubtaskID: sub.ID, Message: reason})
}

// blockedBy returns the id of a dependency that did not finish, or empty.
func (e *execution) blockedBy(sub *domain.Subtask) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range sub.Dependencies {
		d := e.session.Plan.Subtask(dep)
		if d == nil || d.Status != domain.SubtaskDone {
			return dep
		}
	}
	return ""
}

func (e *execution) recordCall(model domain.Model, resp *domain.Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if model.Tier <= 1 {
		e.session.Metrics.LowTierUsageCount++
	} else {
		e.session.Metrics.HighTierUsageCount++
	}
	e.session.Metrics.TotalCost += resp.Cost.TotalCost
}

func (e *execution) refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.RefreshProgress()
	e.session.UpdatedAt = time.Now()
}

// subtaskPrompt leads with the subtask description so the synthesized code
// echoes the requirement terms the gate checks for. Reviewer feedback from
// earlier attempts goes at the end.
func (e *execution) subtaskPrompt(sub *domain.Subtask) string {
	e.mu.Lock()
	feedback := make([]string, len(sub.Feedback))
	copy(feedback, sub.Feedback)
	e.mu.Unlock()

	var b strings.Builder
	b.WriteString(sub.Description)
	b.WriteString(".\nLanguage: ")
	b.WriteString(sub.Language)
	b.WriteString(".\nPart of: ")
	summary := e.session.OriginalPrompt
	if len(summary) > 140 {
		summary = summary[:140]
	}
	b.WriteString(summary)
	if len(feedback) > 0 {
		b.WriteString("\nRevise the previous attempt. Reviewer notes:")
		for _, f := range feedback {
			b.WriteString("\n- ")
			b.WriteString(f)
		}
	}
	return b.String()
}

// pickModel maps difficulty onto the fleet: easy work goes to the cheapest
// coding-capable tier, hard work to the cheapest reviewer-class tier (2+)
// that can both code and reason.
func (o *Orchestrator) pickModel(difficulty domain.Difficulty) (domain.Model, bool) {
	models := o.registry.ListModels()

	if difficulty == domain.DifficultyHard {
		for _, m := range models {
			if m.Tier >= 2 && m.HasCapability("coding") && m.HasCapability("reasoning") {
				return m, true
			}
		}
		for _, m := range models {
			if m.Tier >= 2 && m.HasCapability("coding") {
				return m, true
			}
		}
	}
	for _, m := range models {
		if m.HasCapability("coding") {
			return m, true
		}
	}
	return domain.Model{}, false
}

// topoWaves orders subtasks into dependency levels: every subtask appears
// in the first wave where all of its dependencies are already placed.
// Cyclic leftovers (prevented by Validate) are appended as a final wave so
// execution still terminates.
func topoWaves(subtasks []domain.Subtask) [][]*domain.Subtask {
	placed := make(map[string]bool, len(subtasks))
	remaining := make([]*domain.Subtask, 0, len(subtasks))
	for i := range subtasks {
		remaining = append(remaining, &subtasks[i])
	}

	var waves [][]*domain.Subtask
	for len(remaining) > 0 {
		var wave []*domain.Subtask
		var next []*domain.Subtask
		for _, sub := range remaining {
			ready := true
			for _, dep := range sub.Dependencies {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, sub)
			} else {
				next = append(next, sub)
			}
		}
		if len(wave) == 0 {
			waves = append(waves, next)
			break
		}
		for _, sub := range wave {
			placed[sub.ID] = true
		}
		waves = append(waves, wave)
		remaining = next
	}
	return waves
}

func failedSubtaskSummary(plan *domain.DecompositionResult) string {
	var failed []string
	for i := range plan.Subtasks {
		if plan.Subtasks[i].Status == domain.SubtaskFailed {
			failed = append(failed, plan.Subtasks[i].ID)
		}
	}
	return "subtasks failed: " + strings.Join(failed, ", ")
}

func sinceMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}
