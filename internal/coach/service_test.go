package coach

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/store"
)

const testPrompt = "You are a coach."

// scriptedClient replies deterministically and can be told to fail.
type scriptedClient struct {
	calls int
	fail  bool
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string, _ float64, messages []domain.Message) (string, error) {
	c.calls++
	if c.fail {
		return "", errors.New("simulated timeout")
	}
	last := messages[len(messages)-1]
	return "coach says: " + last.Content, nil
}

func setFixedDay(t *testing.T, day time.Time) {
	t.Helper()
	timeNow = func() time.Time { return day }
	t.Cleanup(func() { timeNow = time.Now })
}

func newTestService(t *testing.T) (*Service, store.Repository, *scriptedClient) {
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
	client := &scriptedClient{}
	return NewService(repo, client, testPrompt, 60), repo, client
}

func TestFirstTurnSeedsConversationAndJournals(t *testing.T) {
	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	result, err := svc.Turn(ctx, sess, TurnRequest{
		Credential: "abc123", Model: "gpt-4", Temperature: 0.5,
		Message: "Explain recursion",
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if result.Reply != "coach says: Explain recursion" {
		t.Errorf("Unexpected reply: %q", result.Reply)
	}
	if !result.Journaled || result.DayNumber != 0 {
		t.Errorf("Expected first day journaled with day_number 0, got %+v", result)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}

	rec, err := repo.GetConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("Failed to read conversation: %v", err)
	}
	if rec == nil || len(rec.Messages) != 3 {
		t.Fatalf("Expected persisted [system,user,assistant], got %+v", rec)
	}
	wantRoles := []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleAssistant}
	for i, role := range wantRoles {
		if rec.Messages[i].Role != role {
			t.Errorf("Message %d: expected role %s, got %s", i, role, rec.Messages[i].Role)
		}
	}
	if rec.Messages[0].Content != testPrompt {
		t.Errorf("Expected system message to carry the coaching prompt")
	}

	entries, err := repo.ListRecentProgress(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected exactly 1 progress entry, got %d", len(entries))
	}
	if entries[0].DayNumber != 0 || entries[0].Date != "2026-08-31" {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if entries[0].Question != "Explain recursion" {
		t.Errorf("Expected the triggering question journaled, got %q", entries[0].Question)
	}
}

func TestSecondTurnSameDayDoesNotJournal(t *testing.T) {
	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "Explain recursion", Model: "gpt-4"}); err != nil {
		t.Fatalf("First turn failed: %v", err)
	}
	result, err := svc.Turn(ctx, sess, TurnRequest{Message: "Give an example", Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}
	if result.Journaled {
		t.Error("Expected second turn of the day not to journal")
	}

	rec, err := repo.GetConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("Failed to read conversation: %v", err)
	}
	if len(rec.Messages) != 5 {
		t.Errorf("Expected conversation to grow to 5 messages, got %d", len(rec.Messages))
	}

	entries, err := repo.ListRecentProgress(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected ledger unchanged with 1 entry, got %d", len(entries))
	}
}

func TestNextDayJournalsAgain(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "day one", Model: "gpt-4"}); err != nil {
		t.Fatalf("First turn failed: %v", err)
	}

	timeNow = func() time.Time { return time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) }
	result, err := svc.Turn(ctx, sess, TurnRequest{Message: "day two", Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}
	if !result.Journaled || result.DayNumber != 1 {
		t.Errorf("Expected day_number 1 journaled, got %+v", result)
	}

	entries, err := repo.ListRecentProgress(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Date != "2026-09-01" {
		t.Errorf("Expected most recent entry for 2026-09-01, got %s", entries[0].Date)
	}
}

func TestJournalIdempotentWithinDay(t *testing.T) {
	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	for i := 0; i < 5; i++ {
		if _, err := svc.Turn(ctx, sess, TurnRequest{Message: fmt.Sprintf("turn %d", i), Model: "gpt-4"}); err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
	}

	entries, err := repo.ListRecentProgress(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly 1 entry after 5 same-day turns, got %d", len(entries))
	}
}

func TestDayNumbersMonotonic(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	for day := 0; day < 5; day++ {
		d := time.Date(2026, 9, 1+day, 8, 0, 0, 0, time.UTC)
		timeNow = func() time.Time { return d }
		if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "study", Model: "gpt-4"}); err != nil {
			t.Fatalf("Turn on day %d failed: %v", day, err)
		}
	}
	t.Cleanup(func() { timeNow = time.Now })

	entries, err := repo.ListRecentProgress(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(entries))
	}
	// Listed day_number descending: 4,3,2,1,0.
	for i, entry := range entries {
		if want := 4 - i; entry.DayNumber != want {
			t.Errorf("Entry %d: expected day_number %d, got %d", i, want, entry.DayNumber)
		}
	}
}

func TestCompletionFailureAbortsTurn(t *testing.T) {
	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	svc, repo, client := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "first", Model: "gpt-4"}); err != nil {
		t.Fatalf("Setup turn failed: %v", err)
	}
	before, err := repo.GetConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("Failed to read conversation: %v", err)
	}

	client.fail = true
	_, err = svc.Turn(ctx, sess, TurnRequest{Message: "this one fails", Model: "gpt-4"})
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("Expected ErrCompletion, got %v", err)
	}

	after, err := repo.GetConversation(ctx, "user-a")
	if err != nil {
		t.Fatalf("Failed to read conversation: %v", err)
	}
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("Expected conversation unchanged (%d messages), got %d",
			len(before.Messages), len(after.Messages))
	}
	if got := sess.Snapshot(); len(got) != len(before.Messages) {
		t.Errorf("Expected working copy unchanged, got %d messages", len(got))
	}
}

func TestRecentJournalOldestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	for day := 0; day < 5; day++ {
		d := time.Date(2026, 9, 1+day, 8, 0, 0, 0, time.UTC)
		timeNow = func() time.Time { return d }
		if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "study", Model: "gpt-4"}); err != nil {
			t.Fatalf("Turn on day %d failed: %v", day, err)
		}
	}
	t.Cleanup(func() { timeNow = time.Now })

	journal, err := svc.RecentJournal(ctx, "user-a", 3)
	if err != nil {
		t.Fatalf("RecentJournal failed: %v", err)
	}
	if len(journal) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(journal))
	}
	for i, want := range []int{2, 3, 4} {
		if journal[i].DayNumber != want {
			t.Errorf("Entry %d: expected day_number %d, got %d", i, want, journal[i].DayNumber)
		}
	}
}

func TestOverview(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	for day := 0; day < 3; day++ {
		d := time.Date(2026, 9, 1+day, 8, 0, 0, 0, time.UTC)
		timeNow = func() time.Time { return d }
		if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "study", Model: "gpt-4"}); err != nil {
			t.Fatalf("Turn failed: %v", err)
		}
	}
	t.Cleanup(func() { timeNow = time.Now })

	overview, err := svc.Overview(ctx, "user-a")
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if overview.CompletedDays != 3 || overview.TargetDays != 60 {
		t.Errorf("Expected 3/60, got %+v", overview)
	}
	if ratio := overview.Ratio(); ratio != 0.05 {
		t.Errorf("Expected ratio 0.05, got %v", ratio)
	}
}

func TestHistoryHidesSystemMessage(t *testing.T) {
	setFixedDay(t, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := NewSession("user-a")

	if _, err := svc.Turn(ctx, sess, TurnRequest{Message: "hello", Model: "gpt-4"}); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	history, err := svc.History(ctx, sess)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 visible messages, got %d", len(history))
	}
	for _, msg := range history {
		if msg.Role == domain.RoleSystem {
			t.Error("System message must not be visible in history")
		}
	}
}
