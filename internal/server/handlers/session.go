package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/opsdeck/opsdeck/internal/server/middleware"
	"github.com/opsdeck/opsdeck/internal/session"
	"github.com/opsdeck/opsdeck/pkg/api"
)

// SessionHandler serves session liveness, heartbeat and listing
// endpoints.
type SessionHandler struct {
	logger  *slog.Logger
	manager *session.Manager
}

// NewSessionHandler creates the handler for the session endpoints
func NewSessionHandler(logger *slog.Logger, manager *session.Manager) *SessionHandler {
	return &SessionHandler{logger: logger, manager: manager}
}

// Check handles POST /api/v1/auth/session. Unauthenticated by design:
// the client uses it to decide whether to refresh or re-login.
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SessionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	check, err := h.manager.CheckSession(ctx, req.RefreshToken)
	if err != nil {
		h.logger.ErrorContext(ctx, "session check failed", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	sendJSON(w, api.SessionCheckResponse{
		Valid:         check.Valid,
		ExpiresAt:     check.ExpiresAt,
		ShouldRefresh: check.ShouldRefresh,
	}, http.StatusOK)
}

// Heartbeat handles POST /api/v1/auth/heartbeat (authenticated).
// Recording activity never fails loudly; a swept session, or a session
// id that is not the caller's own, is a no-op.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	var req api.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	if h.ownsSession(ctx, userID, req.SessionID) {
		h.manager.RecordActivity(ctx, req.SessionID)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownsSession reports whether the session id belongs to the user.
func (h *SessionHandler) ownsSession(ctx context.Context, userID, sessionID string) bool {
	sessions, err := h.manager.ListUserSessions(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list sessions", slog.Any("error", err))
		return false
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			return true
		}
	}
	return false
}

// List handles GET /api/v1/auth/sessions (authenticated), returning
// the caller's own sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	sessions, err := h.manager.ListUserSessions(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list sessions", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	resp := api.SessionListResponse{Sessions: make([]api.SessionInfo, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, api.SessionInfo{
			ID:           s.ID,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
		})
	}

	sendJSON(w, resp, http.StatusOK)
}

// Revoke handles DELETE /api/v1/auth/sessions/{id} (authenticated).
// Callers may only revoke their own sessions.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	sessionID := r.PathValue("id")
	if sessionID == "" {
		sendError(w, api.CodeInternalError, "session id is required", http.StatusBadRequest)
		return
	}

	// Whether the session belongs to someone else or does not exist at
	// all is not distinguished for the caller
	if !h.ownsSession(ctx, userID, sessionID) {
		sendError(w, api.CodeNotFound, "", http.StatusNotFound)
		return
	}

	if err := h.manager.InvalidateSession(ctx, sessionID); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke session", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
