package handlers

import (
	"net/http"
	"time"

	"github.com/photosync/journal/internal/models"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	now func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

// HealthCheck returns the server health status
// GET /health, /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
	})
}
