// Package orchestrator ties the pipeline together: it owns the single-model
// process path (classify, select, execute, cascade, refine, account) and the
// collaborative coding path, and it is the one place adapter calls happen.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/conversation"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/quality"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/retry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/routing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/trace"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

// Deps carries everything the orchestrator composes. Trace and
// Conversations may be nil; they degrade to no-ops. A nil Hub gets an
// in-process one.
type Deps struct {
	Config        *config.Config
	Logger        *zap.Logger
	Registry      *registry.Registry
	Router        *routing.Router
	Budget        *budget.Controller
	Analyzer      *analyzer.Analyzer
	Usage         *usage.Tracker
	Conversations conversation.Store
	Trace         trace.Sink
	Hub           *collab.Hub
	Sessions      *collab.SessionStore
}

// Service implements process and process_collaborative. It also implements
// the executor contract the quality controller and the collaborative
// orchestrator call back into, so every adapter invocation in the system
// funnels through ExecuteOn.
type Service struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	router   *routing.Router
	budget   *budget.Controller
	usage    *usage.Tracker
	conv     conversation.Store
	trace    trace.Sink
	hub      *collab.Hub
	sessions *collab.SessionStore
	quality  *quality.Controller
	collab   *collab.Orchestrator
	retryCfg *retry.Config

	wg sync.WaitGroup
}

func New(d Deps) *Service {
	if d.Trace == nil {
		d.Trace = trace.NewNoopSink()
	}
	if d.Hub == nil {
		d.Hub = collab.NewHub(d.Logger)
	}

	s := &Service{
		cfg:      d.Config,
		logger:   d.Logger.Named("orchestrator"),
		registry: d.Registry,
		router:   d.Router,
		budget:   d.Budget,
		usage:    d.Usage,
		conv:     d.Conversations,
		trace:    d.Trace,
		hub:      d.Hub,
		sessions: d.Sessions,
		retryCfg: retry.ForAttempts(d.Config.Routing.RetryAttempts),
	}
	s.quality = quality.New(d.Config.Quality, d.Config.Collab, d.Registry, s, d.Logger)
	s.collab = collab.NewOrchestrator(d.Config.Collab, d.Registry, s, d.Analyzer, d.Hub, d.Logger)
	return s
}

// Hub exposes the session event hub for streaming consumers.
func (s *Service) Hub() *collab.Hub { return s.hub }

// Collab exposes the collaborative orchestrator, mainly for its classifier.
func (s *Service) Collab() *collab.Orchestrator { return s.collab }

// Process handles one single-model request end to end. It never returns a
// nil response; failures come back as an error response with a taxonomy
// code, a zero-token usage, and the measured latency.
func (s *Service) Process(ctx context.Context, req *domain.Request) *domain.Response {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		resp := domain.ErrorResponse(domain.NewError(domain.CodeOrchestratorError, "empty prompt"), sinceMS(start))
		requestsTotal.WithLabelValues(string(domain.TaskAuto), "rejected").Inc()
		return &resp
	}

	requestID := uuid.NewString()
	if req.SessionID == "" {
		req.SessionID = "req-" + requestID
	}
	if s.usage != nil {
		s.usage.Begin(req.SessionID, req.UserMetadata)
	}

	if req.Context == nil && req.ConversationID != "" && s.conv != nil {
		cc, err := s.conv.BuildContext(ctx, req.ConversationID)
		if err != nil {
			s.logger.Warn("conversation context unavailable",
				zap.String("conversation_id", req.ConversationID), zap.Error(err))
		} else {
			req.Context = cc
		}
	}

	c := s.router.Classify(req)

	sel, err := s.router.Select(ctx, req, c)
	if err != nil {
		return s.rejected(requestID, c, err, start)
	}

	resp, execErr := s.ExecuteOn(ctx, req, sel.Model)
	if resp == nil {
		// Registry lookup raced a reload; no adapter call happened.
		return s.rejected(requestID, c, execErr, start)
	}
	if sel.FellBack {
		resp.FallbackUsed = true
	}

	// Provider errors recover locally via cascade; admission and internal
	// errors surface as-is. Successful responses cascade on quality.
	if resp.Error == nil || domain.Retryable(resp.Error) {
		if s.quality.ShouldCascade(resp, c.Analysis.Confidence) {
			before := resp
			resp = s.quality.Cascade(ctx, req, sel.Model, resp)
			if resp != before {
				cascadesTotal.Inc()
			}
		}
	}

	if resp.Success {
		if base, _, gerr := s.registry.Get(resp.ModelUsed); gerr == nil && s.quality.ShouldRefine(resp, base) {
			resp = s.quality.Refine(ctx, req, base, resp)
		}
	}

	resp.LatencyMS = sinceMS(start)

	if resp.Success && req.ConversationID != "" && s.conv != nil {
		turn := domain.ConversationTurn{
			Prompt:     req.Prompt,
			Response:   resp.Text,
			ModelUsed:  resp.ModelUsed,
			Complexity: c.Analysis.Complexity,
			CreatedAt:  time.Now(),
		}
		if err := s.conv.AddTurn(ctx, req.ConversationID, turn); err != nil {
			s.logger.Warn("conversation turn not recorded",
				zap.String("conversation_id", req.ConversationID), zap.Error(err))
		}
	}

	s.traceRequest(requestID, c, resp)

	status := "success"
	if !resp.Success {
		status = "error"
	}
	requestsTotal.WithLabelValues(string(c.TaskType), status).Inc()

	return resp
}

// ProcessCollaborative runs the request through the collaborative coding
// pipeline under a fresh session id.
func (s *Service) ProcessCollaborative(ctx context.Context, req *domain.Request) (*domain.CodingSession, error) {
	return s.ProcessCollaborativeWithID(ctx, req, uuid.NewString())
}

// ProcessCollaborativeWithID runs a collaborative session under a caller
// chosen id so event subscribers can attach before execution starts.
func (s *Service) ProcessCollaborativeWithID(ctx context.Context, req *domain.Request, sessionID string) (*domain.CodingSession, error) {
	if req != nil && req.SessionID == "" {
		req.SessionID = sessionID
	}
	if s.usage != nil && req != nil {
		s.usage.Begin(req.SessionID, req.UserMetadata)
	}
	if s.sessions != nil && req != nil {
		// Seed a planning row before execution so status polls resolve
		// while the session runs. The terminal save below replaces it.
		if err := s.sessions.Save(ctx, collab.PendingSession(sessionID, req.Prompt, time.Now())); err != nil {
			s.logger.Warn("failed to seed coding session row",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	session, err := s.collab.RunWithID(ctx, req, sessionID)
	if session != nil {
		collabSessionsTotal.WithLabelValues(string(session.Status)).Inc()
		if s.sessions != nil {
			snapshot := session
			s.async(func(ctx context.Context) {
				if saveErr := s.sessions.Save(ctx, snapshot); saveErr != nil {
					s.logger.Warn("failed to persist coding session",
						zap.String("session_id", snapshot.ID), zap.Error(saveErr))
				}
			})
		}
	}
	return session, err
}

var collaborativeCues = []string{
	"implement", "write a", "write code", "build a", "create a", "function",
	"class ", "module", "endpoint", "refactor", "unit test", "fix the bug",
	"script", "library", "component",
}

var analyticalCues = []string{
	"explain", "analyze", "analyse", "compare", "summarize", "summarise",
	"describe", "why does", "what is the difference", "review this",
}

var languageMentions = []string{
	"javascript", "typescript", "python", "golang", " go ", "rust", "java",
	"c++", "sql", "html", "css", "react", "vue",
}

// ShouldUseCollaborative decides whether a request belongs on the
// collaborative pipeline: an explicit coding task always does; otherwise a
// prompt without analytical cues qualifies when it carries coding cues, a
// code block, or is a long prompt naming a language.
func (s *Service) ShouldUseCollaborative(req *domain.Request) bool {
	if req == nil {
		return false
	}
	if req.TaskType == domain.TaskCoding {
		return true
	}
	if req.TaskType != "" && req.TaskType != domain.TaskAuto {
		return false
	}

	lower := strings.ToLower(req.Prompt)
	for _, cue := range analyticalCues {
		if strings.Contains(lower, cue) {
			return false
		}
	}
	if strings.Contains(req.Prompt, "```") {
		return true
	}
	for _, cue := range collaborativeCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	if len(req.Prompt) > 400 {
		for _, lang := range languageMentions {
			if strings.Contains(lower, lang) {
				return true
			}
		}
	}
	return false
}

// Flush waits for queued sink writes. Called on shutdown and by tests that
// assert on trace contents.
func (s *Service) Flush() { s.wg.Wait() }

// rejected finalizes a request that never reached a provider.
func (s *Service) rejected(requestID string, c routing.Classification, err error, start time.Time) *domain.Response {
	derr := domain.AsError(err)
	resp := domain.ErrorResponse(derr, sinceMS(start))

	s.logger.Warn("request rejected",
		zap.String("request_id", requestID),
		zap.String("code", string(derr.Code)),
		zap.String("reason", derr.Message))

	s.traceRequest(requestID, c, &resp)
	requestsTotal.WithLabelValues(string(c.TaskType), "rejected").Inc()
	return &resp
}

// traceRequest ships the routing trace and any surfaced error to the sink
// without blocking the caller.
func (s *Service) traceRequest(requestID string, c routing.Classification, resp *domain.Response) {
	rec := trace.AnalysisRecord{
		RequestID: requestID,
		TaskType:  string(c.TaskType),
		Analysis:  c.Analysis,
		ModelID:   resp.ModelUsed,
		Tier:      resp.TierUsed,
		Escalated: resp.TierEscalated,
		CreatedAt: time.Now(),
	}
	s.async(func(ctx context.Context) {
		_ = s.trace.LogAnalysis(ctx, rec)
	})

	if resp.Error != nil {
		kind := string(resp.Error.Code)
		message := resp.Error.Message
		fields := map[string]string{"request_id": requestID}
		if resp.ModelUsed != "" {
			fields["model"] = resp.ModelUsed
		}
		s.async(func(ctx context.Context) {
			_ = s.trace.TrackError(ctx, kind, message, fields)
		})
	}
}

// async runs a sink write on a detached context so request cancellation
// never loses observability data.
func (s *Service) async(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func sinceMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
