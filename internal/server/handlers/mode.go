package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/opsdeck/opsdeck/internal/mode"
	"github.com/opsdeck/opsdeck/pkg/api"
)

// ModeHandler exposes the solo/shared mode decision for UI and
// diagnostics.
type ModeHandler struct {
	logger   *slog.Logger
	resolver *mode.Resolver
}

// NewModeHandler creates the handler for the mode endpoints
func NewModeHandler(logger *slog.Logger, resolver *mode.Resolver) *ModeHandler {
	return &ModeHandler{logger: logger, resolver: resolver}
}

// Status handles GET /api/v1/mode/status
func (h *ModeHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.resolver.Status(r.Context())

	sendJSON(w, api.ModeStatusResponse{
		Mode:              string(status.Mode),
		SharedEnabled:     status.SharedEnabled,
		SharedDBConnected: status.SharedDBConnected,
	}, http.StatusOK)
}

// SetShared handles PUT /api/v1/mode/shared (authenticated). A
// settings write only; it migrates no data.
func (h *ModeHandler) SetShared(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, api.CodeInternalError, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.resolver.SetSharedEnabled(ctx, req.Enabled); err != nil {
		h.logger.ErrorContext(ctx, "failed to update shared-mode flag", slog.Any("error", err))
		sendError(w, api.CodeInternalError, "", http.StatusInternalServerError)
		return
	}

	status := h.resolver.Status(ctx)
	sendJSON(w, api.ModeStatusResponse{
		Mode:              string(status.Mode),
		SharedEnabled:     status.SharedEnabled,
		SharedDBConnected: status.SharedDBConnected,
	}, http.StatusOK)
}
