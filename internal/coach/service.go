package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/ashureev/coach60/internal/store"
)

var (
	// ErrStoreRead marks a failed conversation load. The turn cannot
	// continue safely: falling back to a fresh conversation would silently
	// discard history.
	ErrStoreRead = errors.New("conversation load failed")

	// ErrCompletion marks a failed completion call. Nothing has been
	// persisted when this is returned.
	ErrCompletion = errors.New("completion failed")
)

// timeNow is a variable for testing purposes (allows mocking the calendar day).
var timeNow = time.Now

// TurnRequest is one learner exchange.
type TurnRequest struct {
	Credential  string
	Model       string
	Temperature float64
	Message     string
}

// TurnResult reports the outcome of a completed turn. Warnings carry
// durability problems that occurred after the reply was generated; the
// reply itself is still valid.
type TurnResult struct {
	Reply     string   `json:"reply"`
	Journaled bool     `json:"journaled"`
	DayNumber int      `json:"day_number"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Service orchestrates coaching turns against the store and the completion
// client.
type Service struct {
	repo         store.Repository
	client       llm.CompletionClient
	masterPrompt string
	targetDays   int
}

// NewService creates the orchestrator.
func NewService(repo store.Repository, client llm.CompletionClient, masterPrompt string, targetDays int) *Service {
	return &Service{
		repo:         repo,
		client:       client,
		masterPrompt: masterPrompt,
		targetDays:   targetDays,
	}
}

// ensureLoaded reads the conversation baseline on first use. Caller holds
// the session mutex.
func (s *Service) ensureLoaded(ctx context.Context, sess *Session) error {
	if sess.loaded {
		return nil
	}

	rec, err := s.repo.GetConversation(ctx, sess.UserHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if rec == nil {
		rec = domain.NewConversation(sess.UserHash, s.masterPrompt, timeNow())
	}

	sess.messages = rec.Messages
	sess.loaded = true
	return nil
}

// Turn runs one full exchange: load-if-needed, append the learner message,
// block on the completion call, persist the grown conversation, and apply
// the once-per-day progress rule.
//
// A completion failure aborts before any persistence and leaves the working
// copy untouched. Store write failures after a successful completion do not
// roll anything back; they surface as warnings so the caller can tell the
// learner the reply was generated but not (fully) saved.
func (s *Service) Turn(ctx context.Context, sess *Session, req TurnRequest) (*TurnResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return nil, err
	}

	working := make([]domain.Message, len(sess.messages), len(sess.messages)+2)
	copy(working, sess.messages)
	working = append(working, domain.Message{Role: domain.RoleUser, Content: req.Message})

	reply, err := s.client.Complete(ctx, req.Credential, req.Model, req.Temperature, working)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	working = append(working, domain.Message{Role: domain.RoleAssistant, Content: reply})

	// The working sequence becomes the in-memory baseline for the next turn
	// even if persistence below fails.
	sess.messages = working

	result := &TurnResult{Reply: reply}

	if err := s.repo.UpsertConversation(ctx, &domain.ConversationRecord{
		ID:        sess.UserHash,
		Messages:  working,
		CreatedAt: timeNow(),
	}); err != nil {
		slog.Error("Conversation write failed after completion", "user_id", sess.UserHash, "error", err)
		result.Warnings = append(result.Warnings, "your reply was generated but the conversation could not be saved")
	}

	s.journalTurn(ctx, sess.UserHash, req.Message, reply, result)

	return result, nil
}

// journalTurn applies the progress rule: at most one ledger entry per
// (user, calendar day), journaling only the day's triggering exchange.
func (s *Service) journalTurn(ctx context.Context, userHash, question, reply string, result *TurnResult) {
	today := timeNow().Format(domain.DateFormat)

	dates, err := s.repo.ListProgressDates(ctx, userHash)
	if err != nil {
		slog.Error("Progress lookup failed after completion", "user_id", userHash, "error", err)
		result.Warnings = append(result.Warnings, "your reply was generated but today's progress could not be journaled")
		return
	}
	if dates[today] {
		return
	}

	entry := &domain.ProgressEntry{
		UserHash:  userHash,
		DayNumber: len(dates),
		Date:      today,
		Question:  question,
		Response:  reply,
		CreatedAt: timeNow(),
	}
	err = s.repo.InsertProgress(ctx, entry)
	if errors.Is(err, store.ErrDuplicateDay) {
		// A concurrent session journaled today first.
		return
	}
	if err != nil {
		slog.Error("Progress write failed after completion", "user_id", userHash, "error", err)
		result.Warnings = append(result.Warnings, "your reply was generated but today's progress could not be journaled")
		return
	}

	result.Journaled = true
	result.DayNumber = entry.DayNumber
}

// History returns the visible conversation (without the system instruction),
// loading the baseline on first use.
func (s *Service) History(ctx context.Context, sess *Session) ([]domain.Message, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return nil, err
	}

	rec := domain.ConversationRecord{Messages: sess.messages}
	visible := rec.Visible()
	out := make([]domain.Message, len(visible))
	copy(out, visible)
	return out, nil
}

// Overview computes the days-completed aggregate for a user.
func (s *Service) Overview(ctx context.Context, userHash string) (domain.ProgressOverview, error) {
	dates, err := s.repo.ListProgressDates(ctx, userHash)
	if err != nil {
		return domain.ProgressOverview{}, fmt.Errorf("list progress dates: %w", err)
	}
	return domain.ProgressOverview{
		CompletedDays: len(dates),
		TargetDays:    s.targetDays,
	}, nil
}

// RecentJournal returns the n most recent ledger entries, ordered
// oldest-first for display.
func (s *Service) RecentJournal(ctx context.Context, userHash string, n int) ([]domain.ProgressEntry, error) {
	entries, err := s.repo.ListRecentProgress(ctx, userHash, n)
	if err != nil {
		return nil, fmt.Errorf("list recent progress: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
