package collab

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// component is one candidate slice of a coding request. Cues decide whether
// it appears in the plan; an empty cue list means always present.
type component struct {
	key          string
	category     string
	description  string
	estimatedLOC int
	cues         []string
	dependsOn    []string
	priority     int
}

// componentCatalog is ordered; plan ids (task_1, task_2, …) follow this
// order for the components that match.
var componentCatalog = []component{
	{
		key:          "routing",
		category:     "routing",
		description:  "Set up the HTTP routing layer with REST endpoints for the requested operations",
		estimatedLOC: 40,
		cues:         []string{"api", "rest", "endpoint", "server", "http", "route"},
		priority:     2,
	},
	{
		key:          "data_model",
		category:     "database",
		description:  "Define the data model and storage access layer",
		estimatedLOC: 35,
		cues:         []string{"database", "schema", "storage", "persist", "sql", "mongo", "postgres"},
		priority:     4,
	},
	{
		key:          "ui",
		category:     "ui",
		description:  "Build the user-facing components and page structure",
		estimatedLOC: 60,
		cues:         []string{"ui", "page", "frontend", "react", "vue", "html", "css", "dashboard", "user interface"},
		priority:     5,
	},
	{
		key:          "validation",
		category:     "validation",
		description:  "Implement input validation for credentials and request payloads",
		estimatedLOC: 30,
		cues:         []string{"auth", "login", "validat", "input", "jwt", "credential", "sanitiz"},
		priority:     3,
	},
	{
		key:          "business",
		category:     "business_logic",
		estimatedLOC: 120,
		dependsOn:    []string{"routing", "data_model", "ui", "validation"},
		priority:     1,
	},
	{
		key:          "error_handling",
		category:     "error_handling",
		description:  "Add structured error handling and consistent error responses across the API",
		estimatedLOC: 25,
		cues:         []string{"api", "error", "robust", "production", "async"},
		dependsOn:    []string{"business"},
		priority:     2,
	},
}

// frameworkDeps maps prompt cues to platform-level packages, per target
// language where it matters.
var frameworkDeps = []struct {
	cue  string
	deps map[string]string
}{
	{"react", map[string]string{"": "react"}},
	{"vue", map[string]string{"": "vue"}},
	{"fastify", map[string]string{"": "fastify"}},
	{"jwt", map[string]string{"javascript": "jsonwebtoken", "typescript": "jsonwebtoken", "go": "golang-jwt", "python": "pyjwt"}},
	{"postgres", map[string]string{"javascript": "pg", "typescript": "pg", "go": "lib/pq", "python": "psycopg2"}},
	{"mongo", map[string]string{"": "mongoose"}},
	{"redis", map[string]string{"": "redis"}},
}

// Decomposer turns one coding prompt into an ordered, dependency-linked
// subtask plan. It is deterministic: same prompt, same plan.
type Decomposer struct {
	logger *zap.Logger
}

func NewDecomposer(logger *zap.Logger) *Decomposer {
	return &Decomposer{logger: logger.Named("decomposer")}
}

func (d *Decomposer) Decompose(req domain.DecompositionRequest) (*domain.DecompositionResult, error) {
	prompt := strings.TrimSpace(req.OriginalPrompt)
	if prompt == "" {
		return nil, domain.NewError(domain.CodeOrchestratorError, "decomposition needs a non-empty prompt")
	}
	lower := strings.ToLower(prompt)

	language := req.TargetLanguage
	if language == "" {
		language = detectLanguage(lower)
	}

	picked := matchComponents(lower)
	if req.MaxSubtasks > 0 && len(picked) > req.MaxSubtasks {
		picked = trimToBudget(picked, req.MaxSubtasks)
	}

	idByKey := make(map[string]string, len(picked))
	for i, comp := range picked {
		idByKey[comp.key] = fmt.Sprintf("task_%d", i+1)
	}

	result := &domain.DecompositionResult{
		SuggestedApproach:    suggestedApproach(picked, language),
		ExternalDependencies: externalDependencies(lower, language),
	}
	for i, comp := range picked {
		desc := comp.description
		if comp.key == "business" {
			desc = businessDescription(prompt)
		}
		sub := domain.Subtask{
			ID:           fmt.Sprintf("task_%d", i+1),
			Description:  desc,
			Category:     comp.category,
			Status:       domain.SubtaskPending,
			EstimatedLOC: comp.estimatedLOC,
			Language:     language,
		}
		for _, depKey := range comp.dependsOn {
			if id, ok := idByKey[depKey]; ok {
				sub.Dependencies = append(sub.Dependencies, id)
			}
		}
		result.Subtasks = append(result.Subtasks, sub)
		result.TotalEstimatedLOC += comp.estimatedLOC
	}

	d.logger.Debug("decomposed prompt",
		zap.Int("subtasks", len(result.Subtasks)),
		zap.String("language", language),
		zap.Int("total_loc", result.TotalEstimatedLOC))
	return result, nil
}

// Validate checks the structural contract of a plan. A nil error list means
// the plan is executable.
func (d *Decomposer) Validate(result *domain.DecompositionResult, maxSubtasks int) []string {
	var issues []string
	if result == nil || len(result.Subtasks) == 0 {
		return []string{"plan has no subtasks"}
	}
	if maxSubtasks > 0 && len(result.Subtasks) > maxSubtasks {
		issues = append(issues, fmt.Sprintf("plan has %d subtasks, limit is %d", len(result.Subtasks), maxSubtasks))
	}

	ids := make(map[string]bool, len(result.Subtasks))
	for _, s := range result.Subtasks {
		if s.ID == "" {
			issues = append(issues, "subtask with empty id")
			continue
		}
		if ids[s.ID] {
			issues = append(issues, fmt.Sprintf("duplicate subtask id %s", s.ID))
		}
		ids[s.ID] = true
	}
	for _, s := range result.Subtasks {
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				issues = append(issues, fmt.Sprintf("subtask %s depends on unknown id %s", s.ID, dep))
			}
		}
		if s.Difficulty != "" && s.Difficulty != domain.DifficultyEasy && s.Difficulty != domain.DifficultyHard {
			issues = append(issues, fmt.Sprintf("subtask %s has unknown difficulty %q", s.ID, s.Difficulty))
		}
	}
	if cycle := findCycle(result.Subtasks); cycle != "" {
		issues = append(issues, fmt.Sprintf("dependency cycle through %s", cycle))
	}
	return issues
}

// findCycle runs DFS with a recursion stack and returns an id on a cycle,
// or empty when the graph is acyclic.
func findCycle(subtasks []domain.Subtask) string {
	deps := make(map[string][]string, len(subtasks))
	for _, s := range subtasks {
		deps[s.ID] = s.Dependencies
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(subtasks))

	var visit func(id string) string
	visit = func(id string) string {
		state[id] = inStack
		for _, dep := range deps[id] {
			switch state[dep] {
			case inStack:
				return dep
			case unvisited:
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}
		state[id] = done
		return ""
	}

	for _, s := range subtasks {
		if state[s.ID] == unvisited {
			if hit := visit(s.ID); hit != "" {
				return hit
			}
		}
	}
	return ""
}

func matchComponents(lower string) []component {
	words := promptWords(lower)
	var picked []component
	for _, comp := range componentCatalog {
		if len(comp.cues) == 0 {
			picked = append(picked, comp)
			continue
		}
		for _, cue := range comp.cues {
			if cueMatch(lower, words, cue) {
				picked = append(picked, comp)
				break
			}
		}
	}
	return picked
}

// cueMatch treats single-token cues as word prefixes, so "auth" matches
// "authentication" without "ui" matching "build". Multi-word cues match as
// plain substrings.
func cueMatch(lower string, words []string, cue string) bool {
	if strings.ContainsRune(cue, ' ') {
		return strings.Contains(lower, cue)
	}
	for _, w := range words {
		if strings.HasPrefix(w, cue) {
			return true
		}
	}
	return false
}

func promptWords(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trimToBudget drops the lowest-priority optional components until the plan
// fits. Catalog order is preserved for the survivors.
func trimToBudget(picked []component, max int) []component {
	for len(picked) > max {
		worst := -1
		for i, comp := range picked {
			if len(comp.cues) == 0 {
				continue
			}
			if worst < 0 || comp.priority > picked[worst].priority {
				worst = i
			}
		}
		if worst < 0 {
			break
		}
		removedKey := picked[worst].key
		picked = append(picked[:worst], picked[worst+1:]...)
		for i := range picked {
			picked[i].dependsOn = removeKey(picked[i].dependsOn, removedKey)
		}
	}
	return picked
}

func removeKey(keys []string, key string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func businessDescription(prompt string) string {
	summary := prompt
	if len(summary) > 140 {
		summary = summary[:140]
	}
	return "Implement the core business logic for: " + summary
}

func detectLanguage(lower string) string {
	switch {
	case strings.Contains(lower, "python"), strings.Contains(lower, "django"), strings.Contains(lower, "flask"):
		return "python"
	case strings.Contains(lower, "golang"), strings.Contains(lower, " go "), strings.HasPrefix(lower, "go "):
		return "go"
	case strings.Contains(lower, "typescript"):
		return "typescript"
	default:
		return "javascript"
	}
}

func externalDependencies(lower, language string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(dep string) {
		if dep != "" && !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}

	// A server-side JS API implies a web framework unless one is named.
	if (strings.Contains(lower, "api") || strings.Contains(lower, "server")) &&
		(language == "javascript" || language == "typescript") &&
		!strings.Contains(lower, "fastify") {
		add("express")
	}
	for _, fd := range frameworkDeps {
		if !strings.Contains(lower, fd.cue) {
			continue
		}
		if dep, ok := fd.deps[language]; ok {
			add(dep)
		} else {
			add(fd.deps[""])
		}
	}
	return out
}

func suggestedApproach(picked []component, language string) string {
	keys := make([]string, 0, len(picked))
	for _, comp := range picked {
		keys = append(keys, strings.ReplaceAll(comp.key, "_", " "))
	}
	return fmt.Sprintf("Build in %s, in dependency order: %s.", language, strings.Join(keys, ", "))
}
