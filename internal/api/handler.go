// Package api provides HTTP handlers for the coach API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/coach60/internal/coach"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/ashureev/coach60/internal/rag"
	"github.com/ashureev/coach60/internal/store"
)

// maxRequestBodySize bounds chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler wires the HTTP surface to the orchestrator and its collaborators.
type Handler struct {
	repo         store.Repository
	coach        *coach.Service
	sessions     *coach.Manager
	validator    *llm.Validator
	answerer     *rag.Service // nil when no document index is configured
	rateLimiter  *RateLimiter
	journalLimit int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, coachSvc *coach.Service, sessions *coach.Manager, validator *llm.Validator, answerer *rag.Service, rateLimiter *RateLimiter, journalLimit int) *Handler {
	return &Handler{
		repo:         repo,
		coach:        coachSvc,
		sessions:     sessions,
		validator:    validator,
		answerer:     answerer,
		rateLimiter:  rateLimiter,
		journalLimit: journalLimit,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
