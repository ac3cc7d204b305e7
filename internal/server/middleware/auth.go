package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/identity"
	"github.com/opsdeck/opsdeck/pkg/api"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	usernameKey contextKey = "username"
)

// UserIDFrom returns the authenticated user ID stored by AuthMiddleware.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// UsernameFrom returns the authenticated username stored by AuthMiddleware.
func UsernameFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok
}

// WithIdentity stores the caller's identity in the context. Used by
// AuthMiddleware and by handler tests that bypass it.
func WithIdentity(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

// AuthMiddleware verifies the bearer token on every request and stores
// the caller's identity in the request context. Verification always
// goes through the identity provider, which resolves locally in every
// mode.
func AuthMiddleware(logger *slog.Logger, provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, api.CodeUnauthorized, "missing token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeAuthError(w, api.CodeUnauthorized, "invalid authorization header")
				return
			}

			claims, err := provider.VerifyAccessToken(r.Context(), parts[1])
			if err != nil {
				code := api.CodeInvalidToken
				if errors.Is(err, auth.ErrTokenExpired) {
					code = api.CodeTokenExpired
				}
				logger.WarnContext(r.Context(), "access token rejected", slog.String("code", code))
				writeAuthError(w, code, "")
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Code: code, Message: message})
}
