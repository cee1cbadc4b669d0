package collab

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Gate reviews one subtask result. Five mechanical checks always run; with
// qc_depth=full a heuristic reviewer score blends in at 40%.
type Gate struct {
	cfg    config.CollabConfig
	logger *zap.Logger
}

func NewGate(cfg config.CollabConfig, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger.Named("gate")}
}

const (
	mechanicalShare = 0.6
	reviewerShare   = 0.4
)

func (g *Gate) Review(subtask *domain.Subtask, result *domain.SubtaskResult) domain.QualityReview {
	code := ""
	if result != nil {
		code = result.Code
	}

	review := domain.QualityReview{CheckScores: map[string]float64{}}

	run := func(name string, check func() (float64, []domain.QualityIssue)) float64 {
		score, issues := check()
		review.CheckScores[name] = score
		review.Issues = append(review.Issues, issues...)
		return score
	}

	lang := strings.ToLower(subtask.Language)
	mechanical := (run("syntax", func() (float64, []domain.QualityIssue) { return checkSyntax(code, lang) }) +
		run("logic", func() (float64, []domain.QualityIssue) { return checkLogic(code, subtask) }) +
		run("style", func() (float64, []domain.QualityIssue) { return checkStyle(code) }) +
		run("security", func() (float64, []domain.QualityIssue) { return checkSecurity(code) }) +
		run("performance", func() (float64, []domain.QualityIssue) { return checkPerformance(code) })) / 5

	if g.cfg.QCDepth == "full" {
		reviewer, notes := reviewerScore(code, subtask)
		review.CheckScores["reviewer"] = reviewer
		review.Comments = append(review.Comments, notes...)
		review.Score = mechanicalShare*mechanical + reviewerShare*reviewer
	} else {
		review.Score = mechanical
	}

	for _, is := range review.Issues {
		comment := fmt.Sprintf("[%s/%s] %s", is.Severity, is.Category, is.Message)
		if is.Suggestion != "" {
			comment += "; " + is.Suggestion
		}
		review.Comments = append(review.Comments, comment)
	}

	review.RequiresRevision = review.HasCritical() ||
		review.Score < g.cfg.RequiresReview ||
		review.CountAtOrAbove(domain.SeverityHigh) >= 3
	review.Passed = review.Score >= g.cfg.MinScore && !review.RequiresRevision

	g.logger.Debug("gate verdict",
		zap.String("subtask", subtask.ID),
		zap.Float64("score", review.Score),
		zap.Bool("passed", review.Passed),
		zap.Bool("requires_revision", review.RequiresRevision),
		zap.Int("issues", len(review.Issues)))
	return review
}

// SplitCode separates the first fenced block from the surrounding prose.
// Responses without a fence are treated as all code.
func SplitCode(text string) (code, explanation string) {
	first := strings.Index(text, "```")
	if first < 0 {
		return text, ""
	}
	rest := text[first+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:] // drop the language tag line
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return rest, text[:first]
	}
	explanation = strings.TrimSpace(text[:first] + strings.TrimPrefix(rest[end+3:], "\n"))
	return rest[:end], explanation
}

func checkSyntax(code, lang string) (float64, []domain.QualityIssue) {
	score := 100.0
	var issues []domain.QualityIssue

	if open, close, balanced := bracketBalance(code); !balanced {
		score -= 40
		issues = append(issues, domain.QualityIssue{
			Severity: domain.SeverityCritical,
			Category: domain.IssueSyntax,
			Message:  fmt.Sprintf("unbalanced brackets (%d opened, %d closed)", open, close),
		})
	}

	if lang == "javascript" || lang == "typescript" {
		missing := missingSemicolonLines(code)
		for i, line := range missing {
			if i >= 3 {
				break
			}
			score -= 5
			issues = append(issues, domain.QualityIssue{
				Severity:   domain.SeverityLow,
				Category:   domain.IssueSyntax,
				Message:    fmt.Sprintf("statement may be missing a trailing semicolon: %q", line),
				Suggestion: "terminate statements explicitly",
			})
		}
	}
	return clampScore(score), issues
}

func checkLogic(code string, subtask *domain.Subtask) (float64, []domain.QualityIssue) {
	score := 100.0
	var issues []domain.QualityIssue
	lowerCode := strings.ToLower(code)

	words := requirementWords(subtask.Description)
	if len(words) >= 3 {
		found := 0
		for _, w := range words {
			if strings.Contains(lowerCode, w) {
				found++
			}
		}
		if coverage := float64(found) / float64(len(words)); coverage < 0.3 {
			score -= 25
			issues = append(issues, domain.QualityIssue{
				Severity:   domain.SeverityMedium,
				Category:   domain.IssueLogic,
				Message:    fmt.Sprintf("code covers %d of %d requirement terms from the task description", found, len(words)),
				Suggestion: "address the described requirements directly",
			})
		}
	}

	if needsErrorHandling(subtask) && !hasErrorHandling(lowerCode) {
		score -= 25
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityHigh,
			Category:   domain.IssueLogic,
			Message:    "no error handling in code that talks to external callers or stores",
			Suggestion: "wrap failure-prone calls and surface errors",
		})
	}

	if strings.ToLower(subtask.Language) == "typescript" && strings.Contains(code, ": any") {
		score -= 10
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityLow,
			Category:   domain.IssueLogic,
			Message:    "explicit any defeats type checking",
			Suggestion: "declare a concrete type",
		})
	}
	return clampScore(score), issues
}

func checkStyle(code string) (float64, []domain.QualityIssue) {
	score := 100.0
	var issues []domain.QualityIssue

	lines := nonEmptyLines(code)
	if len(lines) > 30 && !hasComments(code) {
		score -= 10
		issues = append(issues, domain.QualityIssue{
			Severity: domain.SeverityLow,
			Category: domain.IssueStyle,
			Message:  "long code block with no comments",
		})
	}
	if len(lines) > 80 {
		score -= 15
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityMedium,
			Category:   domain.IssueMaintainability,
			Message:    fmt.Sprintf("single block of %d lines; split into smaller functions", len(lines)),
			Suggestion: "extract helpers",
		})
	}
	for _, name := range crypticIdentifiers(code) {
		score -= 5
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityLow,
			Category:   domain.IssueStyle,
			Message:    fmt.Sprintf("single-letter identifier %q outside loop scope", name),
			Suggestion: "use a descriptive name",
		})
		break
	}
	return clampScore(score), issues
}

func checkSecurity(code string) (float64, []domain.QualityIssue) {
	score := 100.0
	var issues []domain.QualityIssue
	lower := strings.ToLower(code)

	if strings.Contains(lower, "eval(") {
		score -= 50
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityCritical,
			Category:   domain.IssueSecurity,
			Message:    "eval() executes arbitrary input",
			Suggestion: "parse the input instead of evaluating it",
		})
	}
	for _, pattern := range []string{"innerhtml", "document.write"} {
		if strings.Contains(lower, pattern) {
			score -= 20
			issues = append(issues, domain.QualityIssue{
				Severity:   domain.SeverityMedium,
				Category:   domain.IssueSecurity,
				Message:    pattern + " can introduce DOM injection",
				Suggestion: "use textContent or a sanitizer",
			})
		}
	}
	if hasHardcodedSecret(code) {
		score -= 50
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityCritical,
			Category:   domain.IssueSecurity,
			Message:    "credential literal embedded in code",
			Suggestion: "read secrets from configuration",
		})
	}
	if hasSQLInterpolation(lower) {
		score -= 30
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityHigh,
			Category:   domain.IssueSecurity,
			Message:    "SQL assembled by string interpolation",
			Suggestion: "use parameterized queries",
		})
	}
	return clampScore(score), issues
}

func checkPerformance(code string) (float64, []domain.QualityIssue) {
	score := 100.0
	var issues []domain.QualityIssue
	lower := strings.ToLower(code)

	hasLoop := strings.Contains(lower, "for ") || strings.Contains(lower, "for(") ||
		strings.Contains(lower, "while ") || strings.Contains(lower, "while(")
	if hasLoop && (strings.Contains(lower, "queryselector") || strings.Contains(lower, "getelementbyid")) {
		score -= 15
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityMedium,
			Category:   domain.IssuePerformance,
			Message:    "DOM lookups inside a loop",
			Suggestion: "hoist the lookup out of the loop",
		})
	}
	for _, line := range strings.Split(lower, "\n") {
		if strings.Count(line, ".map(") >= 2 || strings.Count(line, ".filter(") >= 2 {
			score -= 10
			issues = append(issues, domain.QualityIssue{
				Severity:   domain.SeverityLow,
				Category:   domain.IssuePerformance,
				Message:    "chained redundant iterations over the same collection",
				Suggestion: "combine into a single pass",
			})
			break
		}
	}
	if strings.Contains(lower, "setinterval") && !strings.Contains(lower, "clearinterval") {
		score -= 10
		issues = append(issues, domain.QualityIssue{
			Severity:   domain.SeverityLow,
			Category:   domain.IssuePerformance,
			Message:    "setInterval without a matching clearInterval",
			Suggestion: "store the handle and clear it on teardown",
		})
	}
	return clampScore(score), issues
}

// reviewerScore is the delegated-review contribution for qc_depth=full. It
// is deliberately generous to structurally sound code; mechanical checks
// carry the fault-finding.
func reviewerScore(code string, subtask *domain.Subtask) (float64, []string) {
	score := 60.0
	var notes []string

	lower := strings.ToLower(code)
	lines := nonEmptyLines(code)

	if len(lines) < 2 {
		return 20, []string{"weakness: implementation is close to empty"}
	}
	if hasErrorHandling(lower) {
		score += 15
		notes = append(notes, "strength: failure paths are handled")
	}
	if hasComments(code) {
		score += 10
		notes = append(notes, "strength: intent is documented")
	}
	if len(lines) >= 5 {
		score += 10
	} else {
		notes = append(notes, "weakness: implementation is thin for the estimated scope")
	}
	if subtask.EstimatedLOC > 0 && len(lines) > subtask.EstimatedLOC*4 {
		score -= 10
		notes = append(notes, "weakness: far larger than the estimated scope")
	}
	return clampScore(score), notes
}

func bracketBalance(code string) (opens, closes int, balanced bool) {
	depth := map[byte]int{}
	pairs := map[byte]byte{')': '(', '}': '{', ']': '['}
	ok := true
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case '(', '{', '[':
			depth[c]++
			opens++
		case ')', '}', ']':
			closes++
			open := pairs[c]
			if depth[open] == 0 {
				ok = false
			} else {
				depth[open]--
			}
		}
	}
	for _, d := range depth {
		if d != 0 {
			ok = false
		}
	}
	return opens, closes, ok
}

func missingSemicolonLines(code string) []string {
	var out []string
	for _, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "/*") ||
			strings.HasPrefix(line, "*") || strings.HasPrefix(line, "```") {
			continue
		}
		last := line[len(line)-1]
		switch last {
		case '{', '}', ';', ':', ',', '(', '>':
			continue
		}
		for _, kw := range []string{"if ", "if(", "else", "for ", "for(", "while ", "while(", "try", "catch", "function ", "switch", "case ", "default", "do ", "export", "import "} {
			if strings.HasPrefix(line, kw) {
				line = ""
				break
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func requirementWords(description string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(description)) {
		w = strings.Trim(w, ".,!?:;\"'()`")
		if len(w) < 5 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func needsErrorHandling(subtask *domain.Subtask) bool {
	switch subtask.Category {
	case "routing", "database", "error_handling", "business_logic":
		return true
	}
	lower := strings.ToLower(subtask.Description)
	for _, cue := range []string{"api", "async", "database", "http", "request"} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func hasErrorHandling(lowerCode string) bool {
	for _, cue := range []string{"try", "catch", "except", "raise", "throw", "if err", "errors.new", ".catch("} {
		if strings.Contains(lowerCode, cue) {
			return true
		}
	}
	return false
}

func hasComments(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/*") {
			return true
		}
	}
	return false
}

func nonEmptyLines(code string) []string {
	var out []string
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// crypticIdentifiers finds single-letter bindings outside the customary
// loop counters.
func crypticIdentifiers(code string) []string {
	var out []string
	for _, line := range strings.Split(code, "\n") {
		fields := strings.Fields(line)
		for i := 0; i+1 < len(fields); i++ {
			switch fields[i] {
			case "let", "const", "var":
				name := strings.TrimSuffix(fields[i+1], "=")
				if len(name) == 1 && name != "i" && name != "j" && name != "k" && name != "_" {
					out = append(out, name)
				}
			}
		}
	}
	return out
}

func hasHardcodedSecret(code string) bool {
	for _, line := range strings.Split(strings.ToLower(code), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		hasName := strings.Contains(trimmed, "password") || strings.Contains(trimmed, "api_key") ||
			strings.Contains(trimmed, "apikey") || strings.Contains(trimmed, "secret")
		if !hasName {
			continue
		}
		hasAssign := strings.Contains(trimmed, "=") || strings.Contains(trimmed, ":")
		hasLiteral := strings.Contains(trimmed, "\"") || strings.Contains(trimmed, "'") || strings.Contains(trimmed, "`")
		if hasAssign && hasLiteral && !strings.Contains(trimmed, "process.env") &&
			!strings.Contains(trimmed, "os.environ") && !strings.Contains(trimmed, "os.getenv") {
			return true
		}
	}
	return false
}

func hasSQLInterpolation(lowerCode string) bool {
	for _, line := range strings.Split(lowerCode, "\n") {
		isQuery := strings.Contains(line, "select ") || strings.Contains(line, "insert into") ||
			strings.Contains(line, "update ") || strings.Contains(line, "delete from")
		if !isQuery {
			continue
		}
		if strings.Contains(line, "${") || strings.Contains(line, "\" +") || strings.Contains(line, "' +") ||
			strings.Contains(line, "f\"") || strings.Contains(line, "% (") {
			return true
		}
	}
	return false
}
