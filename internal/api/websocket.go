package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/coach60/internal/coach"
	"github.com/ashureev/coach60/internal/identity"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsTurnRequest is one inbound chat frame.
type wsTurnRequest struct {
	Message     string  `json:"message"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// wsEvent is an outbound frame. Type is one of "thinking", "reply", "error".
type wsEvent struct {
	Type      string   `json:"type"`
	Reply     string   `json:"reply,omitempty"`
	Journaled bool     `json:"journaled,omitempty"`
	DayNumber int      `json:"day_number"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// WebSocketHandler carries chat turns over a WebSocket so the frontend gets
// an explicit busy signal before each blocking completion call.
type WebSocketHandler struct {
	coach       *coach.Service
	sessions    *coach.Manager
	rateLimiter *RateLimiter
	isDev       bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(coachSvc *coach.Service, sessions *coach.Manager, rateLimiter *RateLimiter, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		coach:       coachSvc,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		isDev:       isDev,
	}
}

// credentialFromWSRequest resolves the learner credential. Browsers cannot
// set custom headers on WebSocket upgrades, so a "key" query parameter is
// accepted as well.
func credentialFromWSRequest(r *http.Request) string {
	if c := identity.CredentialFromContext(r.Context()); c != "" {
		return c
	}
	if key := strings.TrimSpace(r.Header.Get(identity.CredentialHeaderName)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("key"))
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := credentialFromWSRequest(r)
	if credential == "" {
		http.Error(w, "missing API credential", http.StatusUnauthorized)
		return
	}
	userID := identity.Derive(credential)
	slog.Info("WebSocket chat connection", "user_id", userID, "ip", r.RemoteAddr)

	// In development the frontend runs on a different port, so the
	// origin check has to be relaxed.
	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.OriginPatterns = []string{"*"}
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("WebSocket close error", "error", closeErr)
		}
	}()

	sess := h.sessions.GetOrCreate(userID)
	ctx := r.Context()

	for {
		var req wsTurnRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				return
			}
			slog.Debug("WebSocket read error", "user_id", userID, "error", err)
			return
		}

		if event, ok := h.reject(sess, req); !ok {
			if err := wsjson.Write(ctx, ws, event); err != nil {
				slog.Debug("WebSocket write error", "user_id", userID, "error", err)
				return
			}
			continue
		}

		// Busy signal before the blocking round trip.
		if err := wsjson.Write(ctx, ws, wsEvent{Type: "thinking"}); err != nil {
			slog.Debug("WebSocket write error", "user_id", userID, "error", err)
			return
		}

		event := h.runTurn(ctx, sess, credential, req)
		if err := wsjson.Write(ctx, ws, event); err != nil {
			slog.Debug("WebSocket write error", "user_id", userID, "error", err)
			return
		}
	}
}

// reject validates a frame before any work happens. Returns ok=false with
// the error event to send back.
func (h *WebSocketHandler) reject(sess *coach.Session, req wsTurnRequest) (wsEvent, bool) {
	if strings.TrimSpace(req.Message) == "" {
		return wsEvent{Type: "error", Error: "message is required"}, false
	}
	if !llm.IsSupported(req.Model) {
		return wsEvent{Type: "error", Error: "unknown model"}, false
	}
	if !h.rateLimiter.Allow(sess.UserHash) {
		return wsEvent{Type: "error", Error: "rate limit exceeded"}, false
	}
	return wsEvent{}, true
}

func (h *WebSocketHandler) runTurn(ctx context.Context, sess *coach.Session, credential string, req wsTurnRequest) wsEvent {
	result, err := h.coach.Turn(ctx, sess, coach.TurnRequest{
		Credential:  credential,
		Model:       req.Model,
		Temperature: req.Temperature,
		Message:     req.Message,
	})
	if err != nil {
		if errors.Is(err, coach.ErrCompletion) {
			return wsEvent{Type: "error", Error: "completion failed: nothing was saved, you can resend"}
		}
		return wsEvent{Type: "error", Error: err.Error()}
	}

	return wsEvent{
		Type:      "reply",
		Reply:     result.Reply,
		Journaled: result.Journaled,
		DayNumber: result.DayNumber,
		Warnings:  result.Warnings,
	}
}
