// Foundry Chat Proxy - relays chat messages to an Azure AI Foundry agent.
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

	"github.com/ashureev/foundry-chat-proxy/internal/agent"
	"github.com/ashureev/foundry-chat-proxy/internal/api"
	"github.com/ashureev/foundry-chat-proxy/internal/config"
	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
	"github.com/ashureev/foundry-chat-proxy/internal/middleware"
	"github.com/ashureev/foundry-chat-proxy/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
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
	if cfg.IsDevelopment() {
		logLevel.Set(slog.LevelDebug)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"endpoint", cfg.Foundry.Endpoint,
		"agent_id", cfg.Foundry.AgentID,
		"workspace", cfg.Foundry.WorkspaceName,
		"credential_mechanism", foundry.DetectCredentialMechanism(os.LookupEnv),
	)

	// Optional transcript store.
	var repo store.Repository
	if cfg.Transcript.Enabled() {
		sqliteStore, err := store.NewSQLite(cfg.Transcript.DBPath)
		if err != nil {
			slog.Error("Failed to initialize transcript store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := sqliteStore.Close(); closeErr != nil {
				slog.Error("Failed to close transcript store", "error", closeErr)
			}
		}()
		repo = sqliteStore
		slog.Info("Transcript store ready", "path", cfg.Transcript.DBPath)
	}

	// The agent backend connects lazily on the first request; failures fall
	// back to simulated replies and are retried on the next request.
	connect := func(ctx context.Context) (agent.Backend, error) {
		tokens, err := foundry.NewAzureTokenProvider(cfg.Foundry.TokenScope)
		if err != nil {
			return nil, err
		}
		if _, err := tokens.Token(ctx); err != nil {
			return nil, err
		}
		client, err := foundry.NewClient(foundry.ClientConfig{
			Endpoint:   cfg.Foundry.Endpoint,
			APIVersion: cfg.Foundry.APIVersion,
			Timeout:    cfg.Foundry.RequestTimeout,
		}, tokens, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	svc := agent.NewService(agent.Settings{
		Endpoint:      cfg.Foundry.Endpoint,
		AgentID:       cfg.Foundry.AgentID,
		AgentName:     cfg.Foundry.AgentName,
		WorkspaceName: cfg.Foundry.WorkspaceName,
		Environment:   cfg.Environment,
	}, connect, agent.Options{}, logger)

	// Initialize handlers.
	chatHandler := agent.NewHandler(svc, repo, logger)
	healthHandler := api.NewHealthHandler(func(ctx context.Context) (any, bool) {
		report := svc.Health(ctx)
		return report, report.Healthy()
	})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r, limiter.Middleware)
	if repo != nil {
		api.NewTranscriptHandler(repo).RegisterRoutes(r)
	}

	// Polling can take up to ~2 minutes per attempt, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter.StartEviction(ctx, time.Minute)

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
