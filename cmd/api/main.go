package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/staybook/internal/config"
	"github.com/joshua-takyi/staybook/internal/connect"
	"github.com/joshua-takyi/staybook/internal/container"
	"github.com/joshua-takyi/staybook/internal/jobs"
	"github.com/joshua-takyi/staybook/internal/routes"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("Starting StayBook API server", "environment", cfg.Environment, "store", cfg.StoreDriver)

	// Initialize database connections
	var clients container.Clients

	clients.Supabase, err = connect.InitSupabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to Supabase", "error", err)
		os.Exit(1)
	}
	clients.Auth, err = connect.InitAuth(cfg)
	if err != nil {
		logger.Error("Failed to create auth client", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Supabase successfully")

	if cfg.StoreDriver == config.StorePostgres {
		clients.Postgres, err = connect.PostgresConnect(cfg)
		if err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to Postgres successfully")
	}

	clients.MongoDB, err = connect.MongoDBConnect(cfg)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to MongoDB successfully")

	clients.Redis, err = connect.RedisConnect(cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Initialize dependency container
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	appContainer, err := container.NewContainer(appCtx, cfg, logger, clients)
	if err != nil {
		logger.Error("Failed to build container", "error", err)
		os.Exit(1)
	}

	// Background jobs
	scheduler := cron.New()
	if err := jobs.InitCronJobs(scheduler, cfg.OutboxSchedule, appContainer.NotificationDispatcher, logger); err != nil {
		logger.Error("Failed to schedule cron jobs", "error", err)
		os.Exit(1)
	}

	// Setup routes
	router := routes.SetupRoutes(appContainer)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// wait for confirmations in flight and a running outbox pass before
	// closing the stores they use
	appContainer.NotificationDispatcher.Wait()
	<-scheduler.Stop().Done()
	appContainer.TokenVerifier.Close()
	stopApp()

	// Close database connections
	if err := connect.MongoDBDisconnect(clients.MongoDB); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}
	if err := connect.PostgresDisconnect(clients.Postgres); err != nil {
		logger.Error("Error disconnecting from Postgres", "error", err)
	}
	if clients.Redis != nil {
		if err := clients.Redis.Close(); err != nil {
			logger.Error("Error disconnecting from Redis", "error", err)
		}
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	if cfg.IsProduction() {
		// JSON logging for production
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel, slog.LevelInfo),
		})
	} else {
		// Human-readable logging for development
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel, slog.LevelDebug),
		})
	}

	return slog.New(handler)
}

func parseLevel(raw string, fallback slog.Level) slog.Level {
	var level slog.Level
	if raw == "" || level.UnmarshalText([]byte(strings.ToLower(raw))) != nil {
		return fallback
	}
	return level
}
