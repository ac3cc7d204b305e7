package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/rbac"
	"github.com/opsdeck/opsdeck/pkg/api"
)

func sendJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, api.ErrorResponse{Code: code, Message: message}, status)
}

// mapError translates the core error taxonomies to HTTP status and
// error code. Authentication failures are 401, authorization failures
// 403, everything unexpected is an opaque 500.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserDisabled):
		// Disabled accounts surface the same generic 401 as bad
		// credentials at this boundary
		return http.StatusUnauthorized, api.CodeUnauthorized
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, api.CodeTokenExpired
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized, api.CodeInvalidToken
	case errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, api.CodeSessionExpired
	case errors.Is(err, rbac.ErrNotAMember):
		return http.StatusForbidden, api.CodeNotAMember
	case errors.Is(err, rbac.ErrInsufficientRole), errors.Is(err, rbac.ErrInvalidRole):
		return http.StatusForbidden, api.CodeInsufficientRole
	case errors.Is(err, rbac.ErrPermissionDenied):
		return http.StatusForbidden, api.CodePermissionDenied
	case errors.Is(err, rbac.ErrNotOwner):
		return http.StatusForbidden, api.CodeNotOwner
	default:
		return http.StatusInternalServerError, api.CodeInternalError
	}
}

func sendCoreError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	message := ""
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	sendError(w, code, message, status)
}
