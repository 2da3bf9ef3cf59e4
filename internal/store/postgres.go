package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/shared"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore implements Repository on a hosted Postgres database. Same
// tables as the SQLite store; the conversation message list is stored as a
// JSONB column.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres creates a Postgres-backed repository from a connection URL.
func NewPostgres(databaseURL string) (Repository, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		messages_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress_logs (
		user_hash TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		question TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(user_hash, date)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_user_day ON progress_logs(user_hash, day_number);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type conversationRow struct {
	ID           string    `db:"id"`
	MessagesJSON []byte    `db:"messages_json"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// GetConversation retrieves the conversation for a user identity.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, messages_json, created_at, updated_at FROM conversations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	rec := domain.ConversationRecord{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.MessagesJSON, &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode conversation messages: %w", err)
	}

	return &rec, nil
}

// UpsertConversation creates or fully replaces the conversation record.
func (s *PostgresStore) UpsertConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode conversation messages: %w", err)
	}

	query := `
	INSERT INTO conversations (id, messages_json, created_at, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		messages_json = EXCLUDED.messages_json,
		updated_at = EXCLUDED.updated_at`

	_, err = s.db.ExecContext(ctx, query, rec.ID, messagesJSON, rec.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ListProgressDates returns the set of distinct dates journaled for a user.
func (s *PostgresStore) ListProgressDates(ctx context.Context, userHash string) (map[string]bool, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows,
		`SELECT DISTINCT date FROM progress_logs WHERE user_hash = $1`, userHash)
	if err != nil {
		return nil, fmt.Errorf("query progress dates: %w", err)
	}

	dates := make(map[string]bool, len(rows))
	for _, date := range rows {
		dates[date] = true
	}
	return dates, nil
}

type progressRow struct {
	UserHash  string    `db:"user_hash"`
	DayNumber int       `db:"day_number"`
	Date      string    `db:"date"`
	Question  string    `db:"question"`
	Response  string    `db:"response"`
	CreatedAt time.Time `db:"created_at"`
}

// ListRecentProgress returns up to limit entries ordered by day_number descending.
func (s *PostgresStore) ListRecentProgress(ctx context.Context, userHash string, limit int) ([]domain.ProgressEntry, error) {
	var rows []progressRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_hash, day_number, date, question, response, created_at
		FROM progress_logs WHERE user_hash = $1
		ORDER BY day_number DESC LIMIT $2`, userHash, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent progress: %w", err)
	}

	entries := make([]domain.ProgressEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.ProgressEntry{
			UserHash:  row.UserHash,
			DayNumber: row.DayNumber,
			Date:      row.Date,
			Question:  row.Question,
			Response:  row.Response,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

// InsertProgress appends one ledger entry.
func (s *PostgresStore) InsertProgress(ctx context.Context, entry *domain.ProgressEntry) error {
	query := `
	INSERT INTO progress_logs (user_hash, day_number, date, question, response, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		entry.UserHash, entry.DayNumber, entry.Date,
		entry.Question, entry.Response, entry.CreatedAt,
	)
	if shared.IsUniqueViolation(err) {
		return ErrDuplicateDay
	}
	if err != nil {
		return fmt.Errorf("insert progress entry: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
