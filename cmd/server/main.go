package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/guestgate/guestgate/internal/api"
	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/auth"
	"github.com/guestgate/guestgate/internal/channels"
	"github.com/guestgate/guestgate/internal/config"
	"github.com/guestgate/guestgate/internal/database"
	"github.com/guestgate/guestgate/internal/enforcement"
	"github.com/guestgate/guestgate/internal/netops"
	"github.com/guestgate/guestgate/internal/policy"
	"github.com/guestgate/guestgate/internal/scheduler"
	"github.com/guestgate/guestgate/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting GuestGate Server",
		"version", "1.0.0",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	pool, err := database.InitPool(ctx, cfg)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer database.Close()

	// Run embedded migrations (compiled into the binary)
	if err := database.RunMigrations(cfg); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	// Initialize authentication service
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.EncryptionKey,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	// Initialize EventChannels
	events := channels.NewEventChannels(channels.Config{
		EnforcementBufferSize: cfg.Events.EnforcementBufferSize,
		SweepBufferSize:       cfg.Events.SweepBufferSize,
	})
	defer events.Close()
	channels.StartEventConsumers(ctx, events, logger)

	// Persistence and domain services
	pgStore := store.New(pool)
	policyEngine := policy.NewEngine(pgStore, logger)
	enforcer := enforcement.NewService(pgStore, netops.DefaultRegistry(), authService, events, logger)

	// Periodic suspension sweep
	var sweeper *scheduler.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = scheduler.NewSweeper(policyEngine, events, logger, cfg.Sweep.GetInterval())
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Sweeper error", "error", err)
			}
		}()
	}

	// Create API router
	deps := &common.Dependencies{
		Store:    pgStore,
		Auth:     authService,
		Enforcer: enforcer,
		Policy:   policyEngine,
		Sweeper:  sweeper,
		Events:   events,
		Logger:   logger,
		Validate: validator.New(),
	}
	router := api.NewRouter(cfg, deps)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel the main context to signal all workers to stop
	cancel()
	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Set format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
