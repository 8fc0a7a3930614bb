package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/medicart-identity/internal/http/respond"
)

// HealthHandler returns uptime and basic status.
type HealthHandler struct {
	service   string
	startedAt time.Time
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(service string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{service: service, startedAt: startedAt}
}

// Register wires the handler into a router.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.ServeHTTP)
}

// ServeHTTP reports the service as up.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status":  "UP",
		"service": h.service,
		"uptime":  time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
