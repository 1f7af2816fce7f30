// Package claudeerr defines the error taxonomy shared by every orchestrator
// package: a single tagged error type carrying a Kind the namespace surface
// can translate into an HTTP status without each caller re-deriving it.
package claudeerr

import "fmt"

// Kind classifies a ClaudeError for status-code mapping and test assertions.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindPermissionDenied    Kind = "permission_denied"
	KindInvalidRequest      Kind = "invalid_request"
	KindIdempotencyRequired Kind = "idempotency_required"
	KindMaxCostRequired     Kind = "max_cost_required"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindAuthRequired        Kind = "auth_required"
	KindUnavailable         Kind = "unavailable"
	KindOther               Kind = "other"
)

// ClaudeError is the error type returned by every orchestrator operation.
type ClaudeError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ClaudeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClaudeError) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string) *ClaudeError {
	return &ClaudeError{Kind: k, Message: msg}
}

func NotFound(msg string) *ClaudeError            { return newErr(KindNotFound, msg) }
func PermissionDenied(msg string) *ClaudeError     { return newErr(KindPermissionDenied, msg) }
func InvalidRequest(reason string) *ClaudeError    { return newErr(KindInvalidRequest, reason) }
func IdempotencyRequired() *ClaudeError            { return newErr(KindIdempotencyRequired, "idempotency_key is required by policy") }
func MaxCostRequired() *ClaudeError                { return newErr(KindMaxCostRequired, "max_cost_usd is required by policy") }
func BudgetExceeded(msg string) *ClaudeError       { return newErr(KindBudgetExceeded, msg) }
func AuthRequired(msg string) *ClaudeError         { return newErr(KindAuthRequired, msg) }
func Unavailable(msg string) *ClaudeError          { return newErr(KindUnavailable, msg) }

// Wrap classifies an opaque downstream error (e.g. from a provider) as Other,
// preserving it as Cause for errors.As/errors.Unwrap chains.
func Wrap(err error) *ClaudeError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ClaudeError); ok {
		return ce
	}
	return &ClaudeError{Kind: KindOther, Message: err.Error(), Cause: err}
}

// Is reports whether err is a *ClaudeError of the given kind.
func Is(err error, k Kind) bool {
	ce, ok := err.(*ClaudeError)
	return ok && ce.Kind == k
}
