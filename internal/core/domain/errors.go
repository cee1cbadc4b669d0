package domain

import (
	"errors"
	"fmt"
)

// Code identifies a failure class surfaced to callers.
type Code string

const (
	// Admission failures, denied before any provider call.
	CodeCostLimitExceeded Code = "COST_LIMIT_EXCEEDED"
	CodeBudgetExceeded    Code = "BUDGET_EXCEEDED"

	// Routing failures, no usable candidate.
	CodeAPIKeyMissing    Code = "API_KEY_MISSING"
	CodeInvalidTaskType  Code = "INVALID_TASK_TYPE"
	CodeModelUnavailable Code = "MODEL_UNAVAILABLE"

	// Provider failures, raised mid-flight.
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeTimeout           Code = "TIMEOUT"
	CodeGenerationError   Code = "GENERATION_ERROR"

	// Internal failures.
	CodeOrchestratorError Code = "ORCHESTRATOR_ERROR"
	CodeCapabilityError   Code = "CAPABILITY_ERROR"
)

// Error is the uniform failure shape carried on responses. Cause holds the
// underlying provider or storage error text when one exists.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`

	wrapped error
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying error for Unwrap and serialization.
func (e *Error) WithCause(cause error) *Error {
	if cause == nil {
		return e
	}
	e.Cause = cause.Error()
	e.wrapped = cause
	return e
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is matches by code so callers branch on the taxonomy, not message text.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the taxonomy code from an error chain. Unclassified
// failures map to ORCHESTRATOR_ERROR.
func CodeOf(err error) Code {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return CodeOrchestratorError
}

// AsError converts any error into the surfaced shape, preserving an existing
// *Error unchanged.
func AsError(err error) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}
	return NewError(CodeOrchestratorError, "internal error").WithCause(err)
}

// Retryable reports whether a provider-side failure may succeed on retry.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimitExceeded, CodeTimeout, CodeGenerationError:
		return true
	}
	return false
}
