// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	DatabaseURL string // non-empty selects the Postgres store

	CompletionBaseURL string
	CompletionTimeout time.Duration

	TargetDays   int
	JournalLimit int

	RateLimit RateLimitConfig
	Index     IndexConfig
}

// RateLimitConfig bounds chat turns per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// IndexConfig locates the document-embedding index used by the
// retrieval-augmented answering endpoint and the offline indexer.
type IndexConfig struct {
	Path           string
	Collection     string
	EmbeddingModel string
	DocsDir        string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/coach.db"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CompletionBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		TargetDays:        getEnvInt("COACH_TARGET_DAYS", 60),
		JournalLimit:      getEnvInt("COACH_JOURNAL_LIMIT", 3),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Index: IndexConfig{
			// Empty means no document index; the ask endpoint reports
			// itself unavailable.
			Path:           getEnv("INDEX_PATH", ""),
			Collection:     getEnv("INDEX_COLLECTION", "coach_docs"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			DocsDir:        getEnv("DOCS_DIR", "./docs"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("either DB_PATH or DATABASE_URL must be set")
	}
	if c.CompletionBaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL cannot be empty")
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.TargetDays <= 0 {
		return fmt.Errorf("COACH_TARGET_DAYS must be > 0")
	}
	if c.JournalLimit <= 0 {
		return fmt.Errorf("COACH_JOURNAL_LIMIT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// UsePostgres reports whether the Postgres store should be used instead of
// the embedded SQLite file.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
