// Coach 60 - Offline Document Index Builder
//
// Reads text documents from DOCS_DIR, chunks and embeds them, and writes
// the embedding index the server queries at runtime. Run this before
// deploying whenever the document set changes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/coach60/internal/config"
	"github.com/ashureev/coach60/internal/rag"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Index.DocsDir == "" {
		slog.Error("DOCS_DIR must be set")
		os.Exit(1)
	}
	if cfg.Index.Path == "" {
		slog.Error("INDEX_PATH must be set")
		os.Exit(1)
	}

	// The indexer embeds with the operator's own key. Learner keys are only
	// ever used for their own queries at serve time.
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Error("OPENAI_API_KEY is required to embed documents")
		os.Exit(1)
	}

	embedFunc := rag.NewStaticEmbeddingFunc(cfg.CompletionBaseURL, cfg.Index.EmbeddingModel, apiKey)
	index, err := rag.OpenIndex(cfg.Index.Path, cfg.Index.Collection, embedFunc)
	if err != nil {
		slog.Error("Failed to open index", "path", cfg.Index.Path, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Building index",
		"docs", cfg.Index.DocsDir,
		"out", cfg.Index.Path,
		"model", cfg.Index.EmbeddingModel,
	)

	chunks, err := rag.BuildIndex(ctx, index, cfg.Index.DocsDir)
	if err != nil {
		slog.Error("Index build failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Index build complete", "chunks_added", chunks, "total_chunks", index.Count())
}
