// Package handlers implements the HTTP API: request processing,
// collaborative sessions with WebSocket progress streams, model and pricing
// lookups, budget administration, and usage session views. Every failure
// body is the same response envelope the orchestrator produces, so clients
// parse one shape regardless of where a request died.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError writes the uniform error envelope under an explicit
// status, used where transport semantics (400, 404) override the taxonomy
// mapping.
func writeDomainError(w http.ResponseWriter, status int, derr *domain.Error) {
	writeJSON(w, status, domain.ErrorResponse(derr, 0))
}

// statusFor maps taxonomy codes onto transport status. Admission denials are
// 402, capacity refusals 429/503, provider faults 502/504, internal faults
// 500.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeBudgetExceeded, domain.CodeCostLimitExceeded:
		return http.StatusPaymentRequired
	case domain.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeModelUnavailable, domain.CodeAPIKeyMissing:
		return http.StatusServiceUnavailable
	case domain.CodeInvalidTaskType:
		return http.StatusBadRequest
	case domain.CodeGenerationError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body, rejecting unknown fields so typos
// in client payloads fail loudly instead of being silently dropped.
func decodeBody(r *http.Request, dst interface{}) *domain.Error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewError(domain.CodeOrchestratorError, "invalid request body").WithCause(err)
	}
	return nil
}
