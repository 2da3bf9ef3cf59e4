// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/coach60/internal/domain"
)

// ErrDuplicateDay is returned by InsertProgress when an entry for the same
// (user, date) already exists. The progress rule is idempotent per day;
// the unique constraint closes the race between two concurrent sessions
// that both passed the "today not yet logged" check.
var ErrDuplicateDay = errors.New("progress already journaled for this day")

// Repository defines the interface for persisting conversations and the
// progress ledger.
type Repository interface {
	// GetConversation retrieves the conversation for a user identity.
	// Returns (nil, nil) when no record exists.
	GetConversation(ctx context.Context, id string) (*domain.ConversationRecord, error)

	// UpsertConversation creates or fully replaces the conversation record.
	// The store has no partial-update operation; the whole message list is
	// written every time.
	UpsertConversation(ctx context.Context, rec *domain.ConversationRecord) error

	// ListProgressDates returns the set of distinct dates journaled for a user.
	ListProgressDates(ctx context.Context, userHash string) (map[string]bool, error)

	// ListRecentProgress returns up to limit entries ordered by day_number
	// descending.
	ListRecentProgress(ctx context.Context, userHash string, limit int) ([]domain.ProgressEntry, error)

	// InsertProgress appends one ledger entry. Returns ErrDuplicateDay when
	// the (user, date) pair is already journaled.
	InsertProgress(ctx context.Context, entry *domain.ProgressEntry) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
