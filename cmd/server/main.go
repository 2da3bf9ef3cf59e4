// Coach 60 - Daily Coaching Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/coach60/internal/api"
	"github.com/ashureev/coach60/internal/coach"
	"github.com/ashureev/coach60/internal/config"
	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/llm"
	"github.com/ashureev/coach60/internal/middleware"
	"github.com/ashureev/coach60/internal/rag"
	"github.com/ashureev/coach60/internal/store"
	"github.com/ashureev/coach60/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	var repo store.Repository
	if cfg.UsePostgres() {
		repo, err = store.NewPostgres(cfg.DatabaseURL)
	} else {
		repo, err = store.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "postgres", cfg.UsePostgres())

	// Initialize services.
	client := llm.NewOpenAIClient(cfg.CompletionBaseURL, cfg.CompletionTimeout)
	validator := llm.NewValidator(client)
	coachSvc := coach.NewService(repo, client, domain.MasterPrompt, cfg.TargetDays)
	sessions := coach.NewManager()
	rateLimiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	// Document index is optional; without INDEX_PATH the ask endpoint
	// reports itself unavailable.
	var answerer *rag.Service
	if cfg.Index.Path != "" {
		embedFunc := rag.NewRequestEmbeddingFunc(cfg.CompletionBaseURL, cfg.Index.EmbeddingModel)
		index, indexErr := rag.OpenIndex(cfg.Index.Path, cfg.Index.Collection, embedFunc)
		if indexErr != nil {
			slog.Warn("Failed to open document index, ask endpoint disabled", "path", cfg.Index.Path, "error", indexErr)
		} else {
			answerer = rag.NewService(index, client, llm.ModelFast)
			slog.Info("Document index loaded", "path", cfg.Index.Path, "chunks", index.Count())
		}
	} else {
		slog.Info("No document index configured (INDEX_PATH not set)")
	}

	// Initialize handlers.
	handler := api.NewHandler(repo, coachSvc, sessions, validator, answerer, rateLimiter, cfg.JournalLimit)
	wsHandler := api.NewWebSocketHandler(coachSvc, sessions, rateLimiter, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	handler.RegisterHealth(r)

	// API routes (credential required).
	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server. WebSocket chat needs long-lived connections, so
	// WriteTimeout stays unset.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
