package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/coach60/internal/coach"
	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/identity"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/ashureev/coach60/internal/store"
	"github.com/go-chi/chi/v5"
)

type stubClient struct {
	fail bool
}

func (c *stubClient) Complete(_ context.Context, _, _ string, _ float64, messages []domain.Message) (string, error) {
	if c.fail {
		return "", errors.New("simulated timeout")
	}
	return "coach reply", nil
}

func newTestRouter(t *testing.T, client llm.CompletionClient, rateLimit int) chi.Router {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "coach.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	coachSvc := coach.NewService(repo, client, "You are a coach.", 60)
	handler := NewHandler(repo, coachSvc, coach.NewManager(), llm.NewValidator(client), nil,
		NewRateLimiter(rateLimit, time.Minute), 3)

	r := chi.NewRouter()
	handler.RegisterHealth(r)
	handler.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}, credential string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if credential != "" {
		req.Header.Set(identity.CredentialHeaderName, credential)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestChatHappyPath(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "Explain recursion", Model: llm.ModelQuality, Temperature: 0.5}, "sk-test")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result coach.TurnResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Reply != "coach reply" {
		t.Errorf("Unexpected reply: %q", result.Reply)
	}
	if !result.Journaled || result.DayNumber != 0 {
		t.Errorf("Expected first-day journal, got %+v", result)
	}
}

func TestChatRequiresCredential(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "hi", Model: llm.ModelFast}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestChatRejectsUnknownModel(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "hi", Model: "gpt-99"}, "sk-test")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "   ", Model: llm.ModelFast}, "sk-test")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestChatCompletionFailureIsBadGateway(t *testing.T) {
	router := newTestRouter(t, &stubClient{fail: true}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "hi", Model: llm.ModelFast}, "sk-test")
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}

func TestChatRateLimited(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 2)

	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/chat",
			ChatRequest{Message: "hi", Model: llm.ModelFast}, "sk-test")
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i, w.Code)
		}
	}

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "hi", Model: llm.ModelFast}, "sk-test")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
}

func TestProgressAndJournalEndpoints(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "day one", Model: llm.ModelFast}, "sk-test")
	if w.Code != http.StatusOK {
		t.Fatalf("Chat failed: %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/progress", nil, "sk-test")
	if w.Code != http.StatusOK {
		t.Fatalf("Progress failed: %d", w.Code)
	}
	var progress struct {
		CompletedDays int     `json:"completed_days"`
		TargetDays    int     `json:"target_days"`
		Ratio         float64 `json:"ratio"`
	}
	if err := json.NewDecoder(w.Body).Decode(&progress); err != nil {
		t.Fatalf("Failed to decode progress: %v", err)
	}
	if progress.CompletedDays != 1 || progress.TargetDays != 60 {
		t.Errorf("Expected 1/60, got %+v", progress)
	}

	w = doJSON(t, router, http.MethodGet, "/api/journal?limit=3", nil, "sk-test")
	if w.Code != http.StatusOK {
		t.Fatalf("Journal failed: %d", w.Code)
	}
	var journal struct {
		Entries []domain.ProgressEntry `json:"entries"`
	}
	if err := json.NewDecoder(w.Body).Decode(&journal); err != nil {
		t.Fatalf("Failed to decode journal: %v", err)
	}
	if len(journal.Entries) != 1 {
		t.Errorf("Expected 1 journal entry, got %d", len(journal.Entries))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	doJSON(t, router, http.MethodPost, "/api/chat",
		ChatRequest{Message: "hello", Model: llm.ModelFast}, "sk-test")

	w := doJSON(t, router, http.MethodGet, "/api/history", nil, "sk-test")
	if w.Code != http.StatusOK {
		t.Fatalf("History failed: %d", w.Code)
	}
	var history struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("Expected 2 visible messages, got %d", len(history.Messages))
	}
	for _, msg := range history.Messages {
		if msg.Role == domain.RoleSystem {
			t.Error("System message must not appear in history")
		}
	}
}

func TestValidateEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubClient{fail: true}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/validate",
		ValidateRequest{Model: llm.ModelFast}, "sk-bad")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var result llm.ValidationResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Valid {
		t.Error("Expected invalid credential result")
	}
	if result.Detail == "" {
		t.Error("Expected a detail message")
	}
}

func TestModelsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	// The model list is public; no credential required.
	w := doJSON(t, router, http.MethodGet, "/api/models", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Models []llm.ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode models: %v", err)
	}
	if len(body.Models) != 2 {
		t.Errorf("Expected 2 models, got %d", len(body.Models))
	}
}

func TestAskWithoutIndex(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	w := doJSON(t, router, http.MethodPost, "/api/ask",
		AskRequest{Question: "what is calculus"}, "sk-test")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when no index is configured, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubClient{}, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 without credential, got %d", w.Code)
	}
}
