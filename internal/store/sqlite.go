package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	conversationMu sync.Mutex // Serializes conversation writes to prevent SQLITE_BUSY
}

// Retry parameters for writes that hit SQLITE_BUSY. The busy_timeout pragma
// covers most contention; this handles the cases where it still surfaces.
const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// withWriteRetry retries a write on SQLITE_BUSY / "database is locked"
// errors with exponential backoff. Any other error returns immediately.
func withWriteRetry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || ctx.Err() != nil {
			return err
		}
		if i < writeMaxRetries-1 {
			delay := writeRetryBaseDelay * time.Duration(1<<i)
			slog.Debug("Database locked, retrying write", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress_logs (
		user_hash TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		question TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at INTEGER NOT NULL,
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetConversation retrieves the conversation for a user identity.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	query := `SELECT id, messages_json, created_at, updated_at FROM conversations WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var rec domain.ConversationRecord
	var messagesJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&rec.ID, &messagesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode conversation messages: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}

// UpsertConversation creates or fully replaces the conversation record.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode conversation messages: %w", err)
	}

	query := `
	INSERT INTO conversations (id, messages_json, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		messages_json = excluded.messages_json,
		updated_at = excluded.updated_at`

	err = withWriteRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			rec.ID, string(messagesJSON),
			rec.CreatedAt.Unix(), time.Now().Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ListProgressDates returns the set of distinct dates journaled for a user.
func (s *SQLiteStore) ListProgressDates(ctx context.Context, userHash string) (map[string]bool, error) {
	query := `SELECT DISTINCT date FROM progress_logs WHERE user_hash = ?`

	rows, err := s.db.QueryContext(ctx, query, userHash)
	if err != nil {
		return nil, fmt.Errorf("query progress dates: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close progress dates rows", "error", closeErr)
		}
	}()

	dates := make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan progress date: %w", err)
		}
		dates[date] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress dates: %w", err)
	}

	return dates, nil
}

// ListRecentProgress returns up to limit entries ordered by day_number descending.
func (s *SQLiteStore) ListRecentProgress(ctx context.Context, userHash string, limit int) ([]domain.ProgressEntry, error) {
	query := `
		SELECT user_hash, day_number, date, question, response, created_at
		FROM progress_logs WHERE user_hash = ?
		ORDER BY day_number DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userHash, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent progress: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent progress rows", "error", closeErr)
		}
	}()

	var entries []domain.ProgressEntry
	for rows.Next() {
		var entry domain.ProgressEntry
		var createdAt int64

		if err := rows.Scan(
			&entry.UserHash, &entry.DayNumber, &entry.Date,
			&entry.Question, &entry.Response, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan progress entry: %w", err)
		}

		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent progress: %w", err)
	}

	return entries, nil
}

// InsertProgress appends one ledger entry.
func (s *SQLiteStore) InsertProgress(ctx context.Context, entry *domain.ProgressEntry) error {
	query := `
	INSERT INTO progress_logs (user_hash, day_number, date, question, response, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	err := withWriteRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			entry.UserHash, entry.DayNumber, entry.Date,
			entry.Question, entry.Response, entry.CreatedAt.Unix(),
		)
		return execErr
	})
	if shared.IsUniqueViolation(err) {
		return ErrDuplicateDay
	}
	if err != nil {
		return fmt.Errorf("insert progress entry: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
