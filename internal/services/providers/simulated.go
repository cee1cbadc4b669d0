package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Fault selects a failure mode for injection. Rate-limit and timeout surface
// as errors; malformed returns success with garbage text so the quality path
// gets exercised too.
type Fault string

const (
	FaultRateLimit Fault = "rate_limit"
	FaultTimeout   Fault = "timeout"
	FaultMalformed Fault = "malformed"
)

const malformedText = `{"choices":[{"text":"`

// SimulatedAdapter deterministically synthesizes responses for one model.
// Identical (model, prompt) pairs produce identical text and token counts,
// which keeps routing and budget behavior reproducible under test. Latency
// follows the model's hint scaled down so suites stay fast.
type SimulatedAdapter struct {
	*BaseAdapter
	model        domain.Model
	apiKey       string
	latencyScale float64

	mu     sync.Mutex
	faults []Fault
}

type SimulatedOption func(*SimulatedAdapter)

// WithLatencyScale overrides the default 0.01 scaling of the latency hint.
func WithLatencyScale(scale float64) SimulatedOption {
	return func(s *SimulatedAdapter) { s.latencyScale = scale }
}

func NewSimulated(model domain.Model, apiKey string, opts ...SimulatedOption) *SimulatedAdapter {
	s := &SimulatedAdapter{
		BaseAdapter:  NewBaseAdapter(model.ID, string(model.Provider)),
		model:        model,
		apiKey:       apiKey,
		latencyScale: 0.01,
	}
	for _, opt := range opts {
		opt(s)
	}
	if apiKey == "" {
		s.SetHealthy(false)
	}
	return s
}

// InjectFault queues count occurrences of the fault; each Generate consumes
// at most one.
func (s *SimulatedAdapter) InjectFault(fault Fault, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < count; i++ {
		s.faults = append(s.faults, fault)
	}
}

func (s *SimulatedAdapter) takeFault() Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.faults) == 0 {
		return ""
	}
	f := s.faults[0]
	s.faults = s.faults[1:]
	return f
}

func (s *SimulatedAdapter) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	start := time.Now()

	if s.apiKey == "" {
		s.recordFailure(0)
		return nil, domain.Errorf(domain.CodeAPIKeyMissing, "no API key configured for provider %s", s.Family())
	}

	switch s.takeFault() {
	case FaultRateLimit:
		s.recordFailure(elapsedMS(start))
		return nil, domain.Errorf(domain.CodeRateLimitExceeded, "simulated rate limit on %s", s.ModelID())
	case FaultTimeout:
		s.recordFailure(elapsedMS(start))
		return nil, domain.Errorf(domain.CodeTimeout, "simulated timeout on %s after %v", s.ModelID(), opts.Timeout)
	case FaultMalformed:
		usage := domain.NewTokenUsage(estimateTokens(prompt), estimateTokens(malformedText))
		latency := elapsedMS(start)
		s.recordSuccess(usage, latency)
		return &Result{Text: malformedText, Usage: usage, FinishReason: "stop", LatencyMS: latency}, nil
	}

	delay := time.Duration(float64(s.model.LatencyHintMS)*s.latencyScale) * time.Millisecond
	if opts.Timeout > 0 && delay >= opts.Timeout {
		select {
		case <-ctx.Done():
		case <-time.After(opts.Timeout):
		}
		s.recordFailure(elapsedMS(start))
		return nil, domain.Errorf(domain.CodeTimeout, "%s exceeded %v budget", s.ModelID(), opts.Timeout)
	}
	select {
	case <-ctx.Done():
		s.recordFailure(elapsedMS(start))
		return nil, domain.NewError(domain.CodeTimeout, "generation cancelled").WithCause(ctx.Err())
	case <-time.After(delay):
	}

	text := s.synthesize(prompt, opts)
	if opts.MaxTokens > 0 && len(text)/4 > opts.MaxTokens {
		text = text[:opts.MaxTokens*4]
	}

	usage := domain.NewTokenUsage(estimateTokens(prompt), estimateTokens(text))
	// Deep-reasoning tiers bill thinking tokens on top of visible output.
	if s.model.Tier >= 3 && s.model.HasCapability("reasoning") {
		usage = usage.WithBuckets(0, usage.Output/2)
	}

	latency := elapsedMS(start)
	s.recordSuccess(usage, latency)
	return &Result{Text: text, Usage: usage, FinishReason: "stop", LatencyMS: latency}, nil
}

func (s *SimulatedAdapter) synthesize(prompt string, opts Options) string {
	seed := seedFor(s.ModelID(), prompt)
	if wantsCode(prompt) {
		return codeResponse(detectLanguage(prompt, opts.Metadata), prompt, s.model.Tier, seed)
	}
	return proseResponse(prompt, s.model.Tier, seed)
}

func elapsedMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func seedFor(modelID, prompt string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return h.Sum64()
}

func wantsCode(prompt string) bool {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "```") {
		return true
	}
	for _, cue := range []string{"code", "function", "implement", "class ", "script", "endpoint", "api", "module", "refactor"} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func detectLanguage(prompt string, metadata map[string]string) string {
	if lang := metadata["language"]; lang != "" {
		return strings.ToLower(lang)
	}
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "python"):
		return "python"
	case strings.Contains(lower, "typescript"):
		return "typescript"
	case strings.Contains(lower, "golang") || strings.Contains(lower, " go "):
		return "go"
	case strings.Contains(lower, "rust"):
		return "rust"
	default:
		return "javascript"
	}
}

// keywords picks the longest words of the prompt so synthesized responses
// echo the request; downstream review checks look for exactly that.
func keywords(prompt string, max int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(prompt)) {
		w = strings.Trim(w, ".,!?:;\"'()`")
		if len(w) < 5 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	return out
}

func identFrom(words []string, seed uint64, fallback string) string {
	if len(words) == 0 {
		return fallback
	}
	w := words[int(seed)%len(words)]
	w = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, w)
	if w == "" || (w[0] >= '0' && w[0] <= '9') {
		return fallback
	}
	return w
}

func codeResponse(lang, prompt string, tier int, seed uint64) string {
	words := keywords(prompt, 6)
	name := identFrom(words, seed, "run")
	topic := strings.Join(words, " ")

	var b strings.Builder
	fmt.Fprintf(&b, "Here is a %s implementation covering: %s.\n\n", lang, topic)
	b.WriteString("```" + lang + "\n")
	switch lang {
	case "python":
		fmt.Fprintf(&b, "# handles %s\n", topic)
		fmt.Fprintf(&b, "def %s(payload):\n", name)
		b.WriteString("    if payload is None:\n")
		b.WriteString("        raise ValueError(\"payload required\")\n")
		b.WriteString("    result = process(payload)\n")
		b.WriteString("    return result\n")
	case "go":
		fmt.Fprintf(&b, "// %s handles %s\n", name, topic)
		fmt.Fprintf(&b, "func %s(payload string) (string, error) {\n", name)
		b.WriteString("\tif payload == \"\" {\n")
		b.WriteString("\t\treturn \"\", errors.New(\"payload required\")\n")
		b.WriteString("\t}\n")
		b.WriteString("\treturn process(payload), nil\n")
		b.WriteString("}\n")
	default:
		fmt.Fprintf(&b, "// %s handles %s\n", name, topic)
		fmt.Fprintf(&b, "function %s(payload) {\n", name)
		b.WriteString("  if (payload == null) {\n")
		b.WriteString("    throw new Error('payload required');\n")
		b.WriteString("  }\n")
		b.WriteString("  try {\n")
		b.WriteString("    const result = process(payload);\n")
		b.WriteString("    return result;\n")
		b.WriteString("  } catch (err) {\n")
		b.WriteString("    return handleError(err);\n")
		b.WriteString("  }\n")
		b.WriteString("}\n")
	}
	b.WriteString("```\n")
	if tier >= 2 {
		fmt.Fprintf(&b, "\nThe implementation validates input before processing and surfaces failures to the caller. Test cases should cover the empty-payload path and a representative %s case.\n", firstOr(words, "success"))
	}
	return b.String()
}

func proseResponse(prompt string, tier int, seed uint64) string {
	words := keywords(prompt, 5)
	topic := strings.Join(words, ", ")
	if topic == "" {
		topic = "the request"
	}

	openers := []string{
		"Short version first:",
		"Here is the direct answer:",
		"Working through this step by step:",
	}
	var b strings.Builder
	b.WriteString(openers[int(seed)%len(openers)])
	fmt.Fprintf(&b, " regarding %s, the key point is the trade-off between correctness and effort.", topic)
	sentences := 1 + tier*2
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, " Consideration %d weighs %s against the operational constraints already in place.", i+1, firstOr(words, "the goal"))
	}
	return b.String()
}

func firstOr(words []string, fallback string) string {
	if len(words) == 0 {
		return fallback
	}
	return words[0]
}
