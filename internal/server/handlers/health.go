package handlers

import (
	"log/slog"
	"net/http"
)

// HealthHandler serves the health check endpoint
type HealthHandler struct {
	logger  *slog.Logger
	version string
}

// NewHealthHandler creates the health check handler
func NewHealthHandler(logger *slog.Logger, version string) *HealthHandler {
	return &HealthHandler{logger: logger, version: version}
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, HealthResponse{
		Status:  "ok",
		Version: h.version,
	}, http.StatusOK)
}
