// ARC - Conversational Assistant Server
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

	"github.com/arcai/arc-server/internal/api"
	"github.com/arcai/arc-server/internal/assistant"
	"github.com/arcai/arc-server/internal/classifier"
	"github.com/arcai/arc-server/internal/config"
	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/gateway"
	"github.com/arcai/arc-server/internal/middleware"
	"github.com/arcai/arc-server/internal/store"
	"github.com/arcai/arc-server/internal/task"
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
	repo, err := store.NewSQLite(cfg.DBPath)
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
	slog.Info("Database connected")

	// The demo identity has no registration flow, so its conversation record
	// is seeded here. Regular users get theirs at registration time from the
	// auth collaborator.
	if cfg.DemoToken != "" {
		if err := repo.CreateConversation(context.Background(), cfg.DemoUserID); err != nil {
			slog.Error("Failed to seed demo conversation record", "error", err)
			os.Exit(1)
		}
		slog.Info("Demo identity ready", "user_id", cfg.DemoUserID)
	}

	// Initialize services.
	sessions := gateway.NewSessionManager()

	scheduler := task.NewScheduler(repo, func(rec *domain.TaskRecord) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sessions.Push(notifyCtx, rec.UserID, gateway.EventReminderAlert, map[string]string{
			"taskId": rec.ID,
			"title":  rec.Title,
		})
	}, cfg.SweepInterval, logger)

	dispatcher := task.NewDispatcher(repo, scheduler)
	cls := classifier.New(cfg.Classifier, logger)
	orchestrator := assistant.New(repo, cls, dispatcher, cfg.ContextTurns)

	// Initialize handlers.
	authn := gateway.NewAuthenticator(cfg.JWTSecret, cfg.DemoToken, cfg.DemoUserID)
	wsHandler := gateway.NewHandler(authn, orchestrator, sessions, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/assistant", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for persistent connections
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start reminder scheduler. Its first sweep re-derives triggers for
	// pending tasks persisted by a previous process.
	go scheduler.Run(ctx)
	slog.Info("Reminder scheduler started", "sweep_interval", cfg.SweepInterval)

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
