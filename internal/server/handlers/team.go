package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeck/opsdeck/internal/attest"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rbac"
	"github.com/opsdeck/opsdeck/pkg/api"
)

// TeamHandler serves the team attestation and membership endpoints.
// All routes here are team-scoped and go through the RBAC engine.
type TeamHandler struct {
	logger *slog.Logger
	attest *attest.Service
	rbac   *rbac.Engine
	caller CallerEmailFunc
}

// CallerEmailFunc resolves the authenticated caller's email, the team
// membership key.
type CallerEmailFunc func(r *http.Request) (string, error)

// NewTeamHandler creates the handler for the team endpoints
func NewTeamHandler(logger *slog.Logger, attestSvc *attest.Service, engine *rbac.Engine, caller CallerEmailFunc) *TeamHandler {
	return &TeamHandler{logger: logger, attest: attestSvc, rbac: engine, caller: caller}
}

// InitAttestation handles POST /api/v1/team/{teamID}/attestation/init
// (authenticated, owner only). Idempotent: re-initializing returns the
// existing identity.
func (h *TeamHandler) InitAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := r.PathValue("teamID")

	email, err := h.caller(r)
	if err != nil {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	if _, err := h.rbac.RequireMinimumRole(ctx, teamID, email, models.RoleOwner); err != nil {
		sendCoreError(w, err)
		return
	}

	var req struct {
		TeamName string `json:"team_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	info, err := h.attest.InitializeAppInfo(ctx, teamID, req.TeamName)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to initialize app info", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	sendJSON(w, info, http.StatusOK)
}

// GetAppInfo handles GET /api/v1/team/{teamID}/attestation
// (authenticated, any member).
func (h *TeamHandler) GetAppInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := r.PathValue("teamID")

	email, err := h.caller(r)
	if err != nil {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	if _, err := h.rbac.RequireMinimumRole(ctx, teamID, email, models.RoleMember); err != nil {
		sendCoreError(w, err)
		return
	}

	info, err := h.attest.GetAppInfo(ctx, teamID)
	if err != nil {
		if errors.Is(err, attest.ErrNotInitialized) {
			sendError(w, api.CodeNotFound, "team server identity not initialized", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to load app info", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	sendJSON(w, info, http.StatusOK)
}

// GenerateAttestation handles POST /api/v1/team/{teamID}/attestation
// (authenticated, any member).
func (h *TeamHandler) GenerateAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := r.PathValue("teamID")

	email, err := h.caller(r)
	if err != nil {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	if _, err := h.rbac.RequireMinimumRole(ctx, teamID, email, models.RoleMember); err != nil {
		sendCoreError(w, err)
		return
	}

	var req api.AttestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" {
		sendError(w, api.CodeInternalError, "subject_id is required", http.StatusBadRequest)
		return
	}

	att, err := h.attest.GenerateAttestation(ctx, teamID, req.SubjectID)
	if err != nil {
		if errors.Is(err, attest.ErrNotInitialized) {
			sendError(w, api.CodeNotFound, "team server identity not initialized", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to generate attestation", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	sendJSON(w, api.AttestationResponse{
		Payload: api.AttestationPayload{
			SubjectID: att.Payload.SubjectID,
			ServerID:  att.Payload.ServerID,
			IssuedAt:  att.Payload.IssuedAt,
			ExpiresAt: att.Payload.ExpiresAt,
		},
		Signature: att.Signature,
	}, http.StatusOK)
}

// VerifyAttestation handles POST /api/v1/team/attestation/verify.
// Unauthenticated by design: any holder of the public key may verify.
// The response separates cryptographic validity from expiry.
func (h *TeamHandler) VerifyAttestation(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyAttestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	att := &models.Attestation{
		Payload: models.AttestationPayload{
			SubjectID: req.Attestation.Payload.SubjectID,
			ServerID:  req.Attestation.Payload.ServerID,
			IssuedAt:  req.Attestation.Payload.IssuedAt,
			ExpiresAt: req.Attestation.Payload.ExpiresAt,
		},
		Signature: req.Attestation.Signature,
	}

	sendJSON(w, api.VerifyAttestationResponse{
		Valid:   attest.VerifyAttestation(att, req.PublicKey),
		Expired: attest.Expired(att, time.Now()),
	}, http.StatusOK)
}

// ChangeMemberRole handles PUT /api/v1/team/{teamID}/members/{email}/role
// (authenticated). The engine enforces the hierarchy rules.
func (h *TeamHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := r.PathValue("teamID")
	targetEmail := r.PathValue("email")

	actorEmail, err := h.caller(r)
	if err != nil {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rbac.ChangeMemberRole(ctx, teamID, actorEmail, targetEmail, models.TeamRole(req.Role)); err != nil {
		sendCoreError(w, err)
		return
	}

	sendJSON(w, map[string]string{"message": "role updated"}, http.StatusOK)
}

// RemoveMember handles DELETE /api/v1/team/{teamID}/members/{email}
// (authenticated). The engine enforces the hierarchy rules.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := r.PathValue("teamID")
	targetEmail := r.PathValue("email")

	actorEmail, err := h.caller(r)
	if err != nil {
		sendError(w, api.CodeUnauthorized, "", http.StatusUnauthorized)
		return
	}

	if err := h.rbac.RemoveMember(ctx, teamID, actorEmail, targetEmail); err != nil {
		sendCoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
