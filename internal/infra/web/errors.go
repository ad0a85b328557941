package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"teamchat-upgrade/internal/domain"
)

type errorBody struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPlanNotFound),
		errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrInviteNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrWorkflowBusy), errors.Is(err, domain.ErrWorkflowState):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrAlreadyMember):
		return http.StatusConflict, "already_member"
	case errors.Is(err, domain.ErrWorkspaceAdmin):
		return http.StatusConflict, "workspace_admin"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError renders err. Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, err error, details interface{}) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code, Details: details})
}
