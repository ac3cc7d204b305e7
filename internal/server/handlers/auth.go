package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/opsdeck/opsdeck/internal/identity"
	"github.com/opsdeck/opsdeck/internal/server/middleware"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/pkg/api"
)

// AuthHandler serves the authentication endpoints. Registration, login
// and password change always resolve against the local provider; the
// facade guarantees that.
type AuthHandler struct {
	logger   *slog.Logger
	local    *identity.LocalProvider
	provider identity.Provider
}

// NewAuthHandler creates the handler for the auth endpoints
func NewAuthHandler(logger *slog.Logger, local *identity.LocalProvider, provider identity.Provider) *AuthHandler {
	return &AuthHandler{logger: logger, local: local, provider: provider}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.local.Register(ctx, req.Username, req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			sendError(w, api.CodeInternalError, "username or email already taken", http.StatusConflict)
			return
		}
		h.logger.WarnContext(ctx, "registration rejected", slog.Any("error", err))
		sendError(w, api.CodeInternalError, err.Error(), http.StatusBadRequest)
		return
	}

	sendJSON(w, api.RegisterResponse{
		UserID:  user.ID,
		Message: "User registered successfully",
	}, http.StatusCreated)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.provider.Login(ctx, req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WarnContext(ctx, "login failed", slog.String("username", req.Username))
		sendCoreError(w, err)
		return
	}

	sendJSON(w, tokenResponse(result), http.StatusOK)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.provider.RefreshTokens(ctx, req.RefreshToken)
	if err != nil {
		sendCoreError(w, err)
		return
	}

	sendJSON(w, tokenResponse(result), http.StatusOK)
}

// Logout handles POST /api/v1/auth/logout. It always reports success:
// an invalid or already-expired token still leaves no valid session,
// which is the state the caller asked for.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	_ = h.provider.Logout(ctx, req.RefreshToken)

	sendJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// ChangePassword handles POST /api/v1/auth/password (authenticated)
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	var req api.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.local.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword); err != nil {
		sendCoreError(w, err)
		return
	}

	sendJSON(w, map[string]string{"message": "password changed"}, http.StatusOK)
}

// Me handles GET /api/v1/auth/me (authenticated). Roles and
// permissions reflect the current mode.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFrom(ctx)
	if !ok {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	user, err := h.provider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to load user", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	sendJSON(w, user, http.StatusOK)
}

func tokenResponse(result *identity.LoginResult) api.TokenResponse {
	return api.TokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		SessionID:    result.SessionID,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
