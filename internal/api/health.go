package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterHealth registers the health endpoint. It sits outside the
// identity middleware so probes need no credential.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)
}

// HandleHealth reports process and database health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Error("Database health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}
