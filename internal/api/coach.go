package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/coach60/internal/coach"
	"github.com/ashureev/coach60/internal/identity"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/ashureev/coach60/internal/rag"
	"github.com/go-chi/chi/v5"
)

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Message     string  `json:"message"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// ValidateRequest is the POST /api/validate body.
type ValidateRequest struct {
	Model string `json:"model"`
}

// AskRequest is the POST /api/ask body.
type AskRequest struct {
	Question string `json:"question"`
}

// RegisterRoutes registers the coach API routes. The model list needs no
// credential; everything else sits behind the identity middleware, so the
// credential and derived identity are present.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/models", h.HandleModels)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware())
			r.Post("/validate", h.HandleValidate)
			r.Get("/history", h.HandleHistory)
			r.Get("/progress", h.HandleProgress)
			r.Get("/journal", h.HandleJournal)
			r.Post("/chat", h.HandleChat)
			r.Post("/ask", h.HandleAsk)
		})
	})
}

// HandleModels lists the enumerated completion models.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"models": llm.SupportedModels()})
}

// HandleValidate probes the learner's credential against the chosen model.
// Results are cached for the process lifetime; an invalid credential is a
// normal response, not an HTTP error.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !llm.IsSupported(req.Model) {
		Error(w, http.StatusBadRequest, "unknown model")
		return
	}

	result := h.validator.Validate(r.Context(), identity.CredentialFromContext(r.Context()), req.Model)
	JSON(w, http.StatusOK, result)
}

// HandleHistory returns the visible conversation for the learner.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.GetOrCreate(identity.UserIDFromContext(r.Context()))

	history, err := h.coach.History(r.Context(), sess)
	if err != nil {
		slog.Error("History load failed", "user_id", sess.UserHash, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": history})
}

// HandleProgress returns the days-completed aggregate.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	overview, err := h.coach.Overview(r.Context(), userID)
	if err != nil {
		slog.Error("Progress lookup failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"completed_days": overview.CompletedDays,
		"target_days":    overview.TargetDays,
		"ratio":          overview.Ratio(),
	})
}

// HandleJournal returns the most recent journal entries, oldest first.
func (h *Handler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit := h.journalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 60 {
			limit = n
		}
	}

	entries, err := h.coach.RecentJournal(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Journal lookup failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load journal")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// HandleChat runs one coaching turn.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if !llm.IsSupported(req.Model) {
		Error(w, http.StatusBadRequest, "unknown model")
		return
	}

	sess := h.sessions.GetOrCreate(userID)
	result, err := h.coach.Turn(r.Context(), sess, coach.TurnRequest{
		Credential:  identity.CredentialFromContext(r.Context()),
		Model:       req.Model,
		Temperature: req.Temperature,
		Message:     req.Message,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, coach.ErrCompletion) {
			status = http.StatusBadGateway
		}
		slog.Error("Chat turn failed", "user_id", userID, "error", err)
		Error(w, status, err.Error())
		return
	}

	slog.Info("Chat turn completed",
		"user_id", userID,
		"model", req.Model,
		"journaled", result.Journaled,
		"warnings", len(result.Warnings),
	)
	JSON(w, http.StatusOK, result)
}

// HandleAsk answers a subject question from the document index.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if h.answerer == nil {
		Error(w, http.StatusServiceUnavailable, "no document index configured")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		Error(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.answerer.Answer(r.Context(), identity.CredentialFromContext(r.Context()), req.Question)
	if errors.Is(err, rag.ErrEmptyIndex) {
		Error(w, http.StatusNotFound, "document index is empty")
		return
	}
	if err != nil {
		slog.Error("Ask failed", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, "failed to answer question")
		return
	}
	JSON(w, http.StatusOK, answer)
}
