package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeck/opsdeck/internal/identity"
	"github.com/opsdeck/opsdeck/internal/obs"
	"github.com/opsdeck/opsdeck/internal/server/handlers"
	"github.com/opsdeck/opsdeck/internal/server/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Session *handlers.SessionHandler
	Mode    *handlers.ModeHandler
	Team    *handlers.TeamHandler
	Health  *handlers.HealthHandler
}

// New assembles the HTTP routing with the middleware chain:
// logging -> recovery -> (rate limit on credential endpoints) ->
// (auth on protected endpoints) -> handler.
func New(logger *slog.Logger, provider identity.Provider, h Handlers) (http.Handler, func()) {
	mux := http.NewServeMux()

	authMW := middleware.AuthMiddleware(logger, provider)
	limiter := middleware.NewRateLimiter(10, time.Minute, logger)

	limited := func(hf http.HandlerFunc) http.Handler {
		return limiter.Middleware(hf)
	}
	protected := func(hf http.HandlerFunc) http.Handler {
		return authMW(hf)
	}

	// Credential endpoints: rate limited, unauthenticated
	mux.Handle("POST /api/v1/auth/register", limited(h.Auth.Register))
	mux.Handle("POST /api/v1/auth/login", limited(h.Auth.Login))
	mux.Handle("POST /api/v1/auth/refresh", limited(h.Auth.Refresh))

	// Logout and session check accept a refresh token in the body
	mux.HandleFunc("POST /api/v1/auth/logout", h.Auth.Logout)
	mux.HandleFunc("POST /api/v1/auth/session", h.Session.Check)

	// Authenticated surface
	mux.Handle("GET /api/v1/auth/me", protected(h.Auth.Me))
	mux.Handle("POST /api/v1/auth/password", protected(h.Auth.ChangePassword))
	mux.Handle("POST /api/v1/auth/heartbeat", protected(h.Session.Heartbeat))
	mux.Handle("GET /api/v1/auth/sessions", protected(h.Session.List))
	mux.Handle("DELETE /api/v1/auth/sessions/{id}", protected(h.Session.Revoke))

	// Mode
	mux.HandleFunc("GET /api/v1/mode/status", h.Mode.Status)
	mux.Handle("PUT /api/v1/mode/shared", protected(h.Mode.SetShared))

	// Team attestation and membership
	mux.Handle("POST /api/v1/team/{teamID}/attestation/init", protected(h.Team.InitAttestation))
	mux.Handle("GET /api/v1/team/{teamID}/attestation", protected(h.Team.GetAppInfo))
	mux.Handle("POST /api/v1/team/{teamID}/attestation", protected(h.Team.GenerateAttestation))
	mux.HandleFunc("POST /api/v1/team/attestation/verify", h.Team.VerifyAttestation)
	mux.Handle("PUT /api/v1/team/{teamID}/members/{email}/role", protected(h.Team.ChangeMemberRole))
	mux.Handle("DELETE /api/v1/team/{teamID}/members/{email}", protected(h.Team.RemoveMember))

	// Ops
	mux.HandleFunc("GET /api/v1/health", h.Health.Health)
	mux.Handle("GET /metrics", obs.Handler())

	chain := middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/metrics"})(
		middleware.RecoveryMiddleware(logger)(mux),
	)

	return chain, limiter.Stop
}
