package handler

import (
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/manager"
)

// HealthHandler serves the aggregate health endpoint.
type HealthHandler struct {
	manager *manager.Manager
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(m *manager.Manager) *HealthHandler {
	return &HealthHandler{manager: m}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.HealthCheck())
}
