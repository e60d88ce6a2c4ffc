package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stash/internal/server/api"
	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/service"
	"stash/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local development convenience; a missing .env is fine
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"max_file_size", cfg.MaxFileSize,
		"sweep_interval", cfg.SweepInterval,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize artifact storage
	store, err := storage.New(cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if err := store.Ensure(); err != nil {
		slog.Error("failed to prepare storage", "error", err)
		os.Exit(1)
	}
	slog.Info("artifact storage initialized", "backend", cfg.StorageBackend)

	// Repositories
	uploadRepo := database.NewUploadRepo(db)
	linkRepo := database.NewLinkRepo(db)
	tokenRepo := database.NewTokenRepo(db)
	userRepo := database.NewUserRepo(db)

	// Services
	uploadSvc := service.NewUploadService(uploadRepo, userRepo, store, cfg)
	linkSvc := service.NewLinkService(linkRepo, cfg)
	tokenSvc := service.NewTokenService(tokenRepo, cfg)
	accountSvc := service.NewAccountService(userRepo, uploadRepo, linkRepo, tokenRepo, uploadSvc, store, cfg)

	// Start the expired-link sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := service.NewLinkSweeper(linkRepo, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	uploadLimiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	handler := api.NewHandler(uploadSvc, linkSvc, accountSvc, tokenSvc, db, cfg)
	e := api.SetupRouter(handler, tokenSvc, uploadLimiter, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the sweeper and the rate limiter's cleanup loop
	sweepCancel()
	sweeper.Wait()
	uploadLimiter.Stop()

	slog.Info("server exited cleanly")
}
