package analyzer

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// termFamilies groups technical vocabulary into domains. A prompt that hits
// several families is treated as more demanding than a long but flat one.
var termFamilies = map[string][]string{
	"clustering":   {"cluster", "pacemaker", "corosync", "drbd", "failover", "quorum", "consensus", "raft", "replication"},
	"database":     {"database", "postgres", "mysql", "sqlite", "sql", "migration", "schema", "index", "query plan", "transaction"},
	"container":    {"docker", "kubernetes", "k8s", "container", "helm", "pod", "namespace", "image registry"},
	"automation":   {"ansible", "terraform", "pipeline", "ci/cd", "cicd", "automation", "cron", "playbook"},
	"networking":   {"network", "vlan", "subnet", "firewall", "dns", "load balancer", "tcp", "udp", "latency", "datacenter", "proxy"},
	"sysadmin":     {"systemd", "kernel", "selinux", "lvm", "filesystem", "raid", "backup", "logrotate"},
	"ml":           {"machine learning", "neural", "training", "inference", "embedding", "fine-tun", "llm", "model weights"},
	"security":     {"security", "encryption", "vulnerability", "exploit", "tls", "certificate", "oauth", "jwt"},
	"architecture": {"architecture", "microservice", "distributed", "scalability", "high availability", "real-time", "event-driven", "design pattern"},
	"coding":       {"function", "class", "script", "refactor", "debug", "compile", "unit test", "code", "algorithm", "api"},
}

var connectorTerms = []string{
	" and ", " then ", " if ", " when ", " while ", " after ", " before ",
	" because ", " also ", " additionally ", " however ", " unless ", " otherwise ",
}

var expertCues = []string{
	"formally", "prove", "correctness", "strategic", "mission-critical",
	"fault-toleran", "exactly-once", "linearizab", "end-to-end design",
}

var simpleCues = []string{
	"what is", "define", "list ", "name the", "when was", "who is",
}

// Reasoning-depth pattern families. Depth counts how many families appear,
// not how often.
var reasoningPatterns = map[string][]string{
	"why":      {"why", "reason", "root cause", "explain"},
	"how":      {"how ", "how-to", "implement", "design", "architect", "derive"},
	"compare":  {"compare", "versus", " vs ", "difference between", "trade-off", "tradeoff"},
	"evaluate": {"evaluate", "assess", "critique", "pros and cons", "review the"},
	"predict":  {"predict", "forecast", "estimate the impact", "what would happen", "project the"},
}

var creativeCues = []string{
	"write a", "story", "poem", "creative", "imagine", "design", "invent",
	"brainstorm", "novel approach", "compose",
}

var analyticalCues = []string{
	"analyze", "analysis", "architecture", "system", "evaluate", "data",
	"compare", "algorithm", "consensus", "metrics", "diagnose",
}

var accuracyCues = []string{
	"accurate", "correct", "precise", "critical", "production", "careful",
	"exact", "reliable", "no mistakes",
}

var speedCues = []string{
	"quick", "fast", "urgent", "asap", "immediately", "briefly", "short answer",
}

var costCues = []string{
	"cheap", "budget", "cost-effective", "inexpensive", "free tier", "low cost",
}

var exceptionalQualityCues = []string{
	"ultimate", "best possible", "production-grade", "mission-critical",
	"flawless", "world-class", "perfect",
}

var highQualityCues = []string{
	"high quality", "robust", "thorough", "comprehensive", "production", "reliable",
}

var basicQualityCues = []string{
	"rough", "draft", "quick and dirty", "sketch",
}

// outputMultipliers scales the output estimate per complexity rank.
var outputMultipliers = [5]float64{0.5, 1, 2, 4, 8}

// processingSeconds is the base wall-clock guess per complexity rank.
var processingSeconds = [5]float64{1, 2, 5, 12, 25}

// Analyzer derives a QueryAnalysis from a prompt and optional conversation
// context. It holds no mutable state; Analyze is deterministic for a given
// (prompt, context, config).
type Analyzer struct {
	cfg    config.AnalyzerConfig
	logger *zap.Logger
}

func New(cfg config.AnalyzerConfig, logger *zap.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, logger: logger.Named("analyzer")}
}

// Analyze never fails; uncertainty shows up in Confidence, not in an error.
func (a *Analyzer) Analyze(prompt string, conv *domain.ConversationContext) domain.QueryAnalysis {
	lower := strings.ToLower(prompt)
	words := strings.Fields(lower)

	families := a.matchFamilies(lower)
	complexity := a.scoreComplexity(lower, len(words), families)
	depth := scoreReasoningDepth(lower)
	creativity := scoreCreativity(lower)
	balance := scoreBalance(lower)
	intent := classifyIntent(lower)
	quality := classifyQuality(lower)
	caps := a.requiredCapabilities(lower, complexity, depth, intent)

	analysis := domain.QueryAnalysis{
		Complexity:           complexity,
		ReasoningDepth:       depth,
		CreativityLevel:      creativity,
		PriorityBalance:      balance,
		RequiredCapabilities: caps,
		Domains:              families,
		IntentCategory:       intent,
		QualityRequirement:   quality,
		Confidence:           a.confidence(lower, families, intent),
	}
	analysis.EstimatedTokens = a.estimateTokens(len(prompt), complexity)
	analysis.EstimatedProcessingSeconds = a.estimateProcessing(complexity, depth, analysis.EstimatedTokens.Output)

	if conv != nil {
		a.applyContext(&analysis, lower, conv)
	}

	return analysis
}

func (a *Analyzer) matchFamilies(lower string) []string {
	var hit []string
	for family, terms := range termFamilies {
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hit = append(hit, family)
				break
			}
		}
	}
	// Map iteration order is random; keep the result stable for callers
	// that snapshot it.
	sort.Strings(hit)
	return hit
}

// scoreComplexity takes the max of the length bucket and the family bucket,
// then applies small additive adjustments for connector density and explicit
// cues.
func (a *Analyzer) scoreComplexity(lower string, wordCount int, families []string) domain.Complexity {
	chars := len(lower)

	lengthRank := 0
	switch {
	case chars < 80:
		lengthRank = 0
	case chars < 240:
		lengthRank = 1
	case chars < 600:
		lengthRank = 2
	case chars < 1500:
		lengthRank = 3
	default:
		lengthRank = 4
	}

	familyRank := len(families)
	if familyRank > 3 {
		familyRank = 3
	}

	rank := lengthRank
	if familyRank > rank {
		rank = familyRank
	}

	connectors := 0
	for _, c := range connectorTerms {
		connectors += strings.Count(lower, c)
	}
	if wordCount > 0 && connectors >= 3 {
		rank++
	}
	if containsAny(lower, expertCues) {
		rank++
	}
	if containsAny(lower, simpleCues) && len(families) == 0 && rank > 0 {
		rank--
	}

	if rank < 0 {
		rank = 0
	}
	if rank > 4 {
		rank = 4
	}
	return domain.ComplexityFromRank(rank)
}

func scoreReasoningDepth(lower string) domain.ReasoningDepth {
	hits := 0
	for _, patterns := range reasoningPatterns {
		if containsAny(lower, patterns) {
			hits++
		}
	}
	switch {
	case hits >= 3:
		return domain.ReasoningDeep
	case hits >= 1:
		return domain.ReasoningModerate
	default:
		return domain.ReasoningShallow
	}
}

// scoreCreativity is a 2-axis lookup: both axes present reads as innovative,
// neither as factual.
func scoreCreativity(lower string) domain.CreativityLevel {
	creative := containsAny(lower, creativeCues)
	analytical := containsAny(lower, analyticalCues)
	switch {
	case creative && analytical:
		return domain.CreativityInnovative
	case creative:
		return domain.CreativityCreative
	case analytical:
		return domain.CreativityAnalytical
	default:
		return domain.CreativityFactual
	}
}

// scoreBalance starts all three axes at 0.5 and shifts +0.3 for the cued
// axis, -0.1 for the others, then normalizes to sum 1.
func scoreBalance(lower string) domain.PriorityBalance {
	b := domain.PriorityBalance{Accuracy: 0.5, Speed: 0.5, Cost: 0.5}
	if containsAny(lower, accuracyCues) {
		b.Accuracy += 0.3
		b.Speed -= 0.1
		b.Cost -= 0.1
	}
	if containsAny(lower, speedCues) {
		b.Speed += 0.3
		b.Accuracy -= 0.1
		b.Cost -= 0.1
	}
	if containsAny(lower, costCues) {
		b.Cost += 0.3
		b.Accuracy -= 0.1
		b.Speed -= 0.1
	}
	if b.Accuracy < 0 {
		b.Accuracy = 0
	}
	if b.Speed < 0 {
		b.Speed = 0
	}
	if b.Cost < 0 {
		b.Cost = 0
	}
	return b.Normalized()
}

func classifyIntent(lower string) domain.IntentCategory {
	switch {
	case containsAny(lower, []string{"should i", "should we", "choose between", "decide", "recommend", "which is better", "pick one"}):
		return domain.IntentDecision
	case containsAny(lower, []string{"analyze", "evaluate", "assess", "investigate", "diagnose", "review the", "audit"}):
		return domain.IntentAnalysis
	case containsAny(lower, []string{"write", "create", "generate", "build", "implement", "draft", "compose", "develop"}):
		return domain.IntentCreation
	case containsAny(lower, []string{"fix", "convert", "translate", "summarize", "refactor", "update", "install", "configure", "migrate"}):
		return domain.IntentTask
	case strings.Contains(lower, "?") || containsAny(lower, []string{"what ", "why ", "how ", "when ", "where ", "who "}):
		return domain.IntentQuestion
	default:
		return domain.IntentTask
	}
}

func classifyQuality(lower string) domain.QualityRequirement {
	switch {
	case containsAny(lower, exceptionalQualityCues):
		return domain.QualityExceptional
	case containsAny(lower, highQualityCues):
		return domain.QualityHigh
	case containsAny(lower, basicQualityCues):
		return domain.QualityBasic
	default:
		return domain.QualityGood
	}
}

func (a *Analyzer) requiredCapabilities(lower string, complexity domain.Complexity, depth domain.ReasoningDepth, intent domain.IntentCategory) []string {
	var caps []string
	add := func(c string) {
		for _, existing := range caps {
			if existing == c {
				return
			}
		}
		caps = append(caps, c)
	}

	if strings.Contains(lower, "```") || containsAny(lower, termFamilies["coding"]) {
		add("coding")
	}
	if depth == domain.ReasoningDeep || complexity.Rank() >= domain.ComplexityComplex.Rank() {
		add("reasoning")
	}
	if intent == domain.IntentAnalysis || containsAny(lower, analyticalCues) {
		add("analysis")
	}
	if intent == domain.IntentCreation && containsAny(lower, creativeCues) {
		add("creation")
	}
	if containsAny(lower, []string{"search for", "look up", "latest", "current news", "find sources", "web search"}) {
		add("rag_search")
	}
	if containsAny(lower, []string{"this file", "the document", "attached", "pdf", "spreadsheet"}) {
		add("file_search")
	}
	if containsAny(lower, []string{"run the code", "execute", "plot", "simulate", "compute the result"}) {
		add("code_interpreter")
	}
	if containsAny(lower, []string{"strategic", "strategy", "roadmap", "mission-critical"}) {
		add("strategy")
	}
	if len(caps) == 0 {
		add("general")
	}
	return caps
}

func (a *Analyzer) estimateTokens(promptChars int, complexity domain.Complexity) domain.TokenEstimate {
	input := promptChars / 4
	if input < 1 {
		input = 1
	}
	output := int(float64(input) * outputMultipliers[complexity.Rank()])
	if output < 16 {
		output = 16
	}
	if ceiling := a.cfg.OutputTokenCeiling; ceiling > 0 && output > ceiling {
		output = ceiling
	}
	return domain.TokenEstimate{Input: input, Output: output}
}

func (a *Analyzer) estimateProcessing(complexity domain.Complexity, depth domain.ReasoningDepth, outputTokens int) float64 {
	secs := processingSeconds[complexity.Rank()]
	if depth == domain.ReasoningDeep {
		secs *= 1.5
	}
	// Long outputs stream slowly regardless of thinking time.
	secs += float64(outputTokens) / 400
	return secs
}

// confidence grows with prompt length and unambiguous cues, capped at 0.95.
func (a *Analyzer) confidence(lower string, families []string, intent domain.IntentCategory) float64 {
	c := 0.5
	if len(lower) > 40 {
		c += 0.1
	}
	if len(lower) > 200 {
		c += 0.1
	}
	if len(families) > 0 {
		c += 0.15
	}
	if intent != domain.IntentQuestion {
		c += 0.05
	}
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
