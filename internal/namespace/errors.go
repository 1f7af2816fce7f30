package namespace

import (
	"encoding/json"
	"net/http"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

// writeErr maps a *claudeerr.ClaudeError to its §7 HTTP status and code,
// falling back to 500 for anything uncategorized.
func writeErr(w http.ResponseWriter, err error) {
	ce := claudeerr.Wrap(err)
	status, code := statusFor(ce.Kind)
	writeAPIError(w, status, code, ce.Message)
}

func statusFor(k claudeerr.Kind) (int, string) {
	switch k {
	case claudeerr.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case claudeerr.KindPermissionDenied:
		return http.StatusForbidden, "PERMISSION_DENIED"
	case claudeerr.KindInvalidRequest:
		return http.StatusBadRequest, "INVALID_REQUEST"
	case claudeerr.KindIdempotencyRequired:
		return http.StatusUnprocessableEntity, "IDEMPOTENCY_REQUIRED"
	case claudeerr.KindMaxCostRequired:
		return http.StatusUnprocessableEntity, "MAX_COST_REQUIRED"
	case claudeerr.KindBudgetExceeded:
		return http.StatusPaymentRequired, "BUDGET_EXCEEDED"
	case claudeerr.KindAuthRequired:
		return http.StatusUnauthorized, "AUTH_REQUIRED"
	case claudeerr.KindUnavailable:
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
