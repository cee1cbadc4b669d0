package routing

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
)

// Classification pairs the derived task type with the analysis that drove
// it. RuleMinTier carries a tier floor when a configured task rule matched.
type Classification struct {
	TaskType        domain.TaskType      `json:"task_type"`
	Analysis        domain.QueryAnalysis `json:"analysis"`
	UserSpecified   bool                 `json:"user_specified"`
	RuleApplied     string               `json:"rule_applied,omitempty"`
	RuleMinTier     int                  `json:"rule_min_tier,omitempty"`
	ContextEscalate bool                 `json:"context_escalated,omitempty"`
	CriticalSignals int                  `json:"critical_signals"`
}

var flagshipCues = []string{"strategic", "critical", "ultimate", "mission-critical"}

var diagnosticCues = []string{
	"troubleshoot", "debug", "root cause", "diagnose", "incident", "outage",
	"not working", "keeps failing",
}

// Classify runs the analyzer and derives the task type. A user-specified
// type (anything but auto) is honored as-is; the analysis still feeds
// routing weights.
func (r *Router) Classify(req *domain.Request) Classification {
	analysis := r.analyzer.Analyze(req.Prompt, req.Context)
	lower := strings.ToLower(req.Prompt)

	c := Classification{
		Analysis:        analysis,
		CriticalSignals: countCriticalSignals(analysis, lower),
	}
	if analysis.ContextFactors[analyzer.FactorContextEscalated] == 1 {
		c.ContextEscalate = true
	}

	if req.TaskType != "" && req.TaskType != domain.TaskAuto {
		c.TaskType = req.TaskType
		c.UserSpecified = true
		return c
	}

	if rule := r.matchRule(lower); rule != nil {
		if t, err := domain.ParseTaskType(rule.TaskType); err == nil && t != domain.TaskAuto {
			c.TaskType = t
			c.RuleApplied = strings.Join(rule.Keywords, ",")
			c.RuleMinTier = rule.MinTier
			return c
		}
	}

	c.TaskType = r.deriveTaskType(analysis, c.CriticalSignals)
	if c.ContextEscalate {
		c.TaskType = bumpTaskType(c.TaskType)
	}

	r.logger.Debug("classified request",
		zap.String("task_type", string(c.TaskType)),
		zap.String("complexity", string(analysis.Complexity)),
		zap.Int("critical_signals", c.CriticalSignals))
	return c
}

func (r *Router) matchRule(lower string) *ruleMatch {
	for i := range r.cfg.TaskRules {
		rule := &r.cfg.TaskRules[i]
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return &ruleMatch{TaskType: rule.TaskType, Keywords: rule.Keywords, MinTier: rule.MinTier}
			}
		}
	}
	return nil
}

type ruleMatch struct {
	TaskType string
	Keywords []string
	MinTier  int
}

// countCriticalSignals tallies the flagship-class indicators. Crossing the
// configured threshold classifies the request as critical.
func countCriticalSignals(a domain.QueryAnalysis, lower string) int {
	signals := 0
	if a.Complexity == domain.ComplexityExpert {
		signals++
	}
	if a.ReasoningDepth == domain.ReasoningDeep {
		signals++
	}
	if a.QualityRequirement == domain.QualityExceptional {
		signals++
	}
	if a.CreativityLevel == domain.CreativityInnovative {
		signals++
	}
	if len(a.Domains) >= 3 {
		signals++
	}
	if a.PriorityBalance.Accuracy > 0.8 {
		signals++
	}
	for _, cue := range flagshipCues {
		if strings.Contains(lower, cue) {
			signals++
			break
		}
	}
	if a.EstimatedProcessingSeconds > 20 {
		signals++
	}
	return signals
}

func (r *Router) deriveTaskType(a domain.QueryAnalysis, criticalSignals int) domain.TaskType {
	threshold := r.cfg.CriticalSignalThreshold
	if threshold <= 0 {
		threshold = 2
	}
	if criticalSignals >= threshold {
		return domain.TaskCritical
	}

	coding := a.HasCapability("coding")
	analytical := a.HasCapability("analysis") || a.IntentCategory == domain.IntentAnalysis

	switch {
	case a.Complexity.Rank() >= domain.ComplexityComplex.Rank():
		if coding {
			return domain.TaskCoding
		}
		if analytical {
			return domain.TaskComplexAnalysis
		}
		return domain.TaskPremium
	case a.Complexity == domain.ComplexityModerate:
		if coding {
			return domain.TaskCoding
		}
		if analytical {
			return domain.TaskComplexAnalysis
		}
		return domain.TaskGeneral
	}

	if (a.CreativityLevel == domain.CreativityCreative || a.CreativityLevel == domain.CreativityInnovative) &&
		a.QualityRequirement == domain.QualityExceptional {
		return domain.TaskPremium
	}
	if a.IntentCategory == domain.IntentDecision && a.QualityRequirement == domain.QualityHigh {
		return domain.TaskPremium
	}

	// Capability-specific routes for otherwise light requests.
	switch {
	case coding:
		return domain.TaskCoding
	case a.HasCapability("rag_search"):
		return domain.TaskRAGSearch
	case a.HasCapability("file_search"):
		return domain.TaskFileSearch
	case a.HasCapability("code_interpreter"):
		return domain.TaskCodeInterpreter
	}

	return domain.TaskGeneral
}

// bumpTaskType moves one level up the escalation ladder when conversation
// context demands a stronger model than the prompt alone suggests.
func bumpTaskType(t domain.TaskType) domain.TaskType {
	switch t {
	case domain.TaskGeneral, domain.TaskRAGSearch, domain.TaskFileSearch,
		domain.TaskCodeInterpreter, domain.TaskGeneralAssistant:
		return domain.TaskComplexAnalysis
	case domain.TaskCoding, domain.TaskComplexAnalysis:
		return domain.TaskPremium
	case domain.TaskPremium:
		return domain.TaskCritical
	}
	return t
}
