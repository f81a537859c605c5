package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stockDataServer/config"
	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/api"
	"stockDataServer/internal/app"
	"stockDataServer/internal/bootstrap"
	"stockDataServer/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "config_file": cfg.ConfigFile})

	// 3. Initialize Repository (price cache)
	repo, err := bootstrap.OpenRepository(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"driver": cfg.DBDriver})

	// 4. Initialize Market Data Providers
	providers, err := bootstrap.Providers(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market data providers")
		log.Fatalf("FATAL: Failed to initialize market data providers: %v", err)
	}

	// 5. Initialize Application Service
	priceService, err := app.NewPriceService(cfg, appLogger, repo, providers...)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize price service")
		log.Fatalf("FATAL: Failed to initialize price service: %v", err)
	}
	appLogger.Info(ctx, "Price service initialized")

	// 6. Start the refresh scheduler
	if cfg.RefreshCron != "" {
		sched := scheduler.NewScheduler(ctx, priceService, appLogger, 0)
		if err := sched.Register(cfg.RefreshCron); err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to register refresh task")
			log.Fatalf("FATAL: Failed to register refresh task: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	} else {
		appLogger.Info(ctx, "Refresh scheduler disabled")
	}

	// 7. Start the HTTP server
	server := api.NewServer(priceService, appLogger, cfg.HTTPPort, cfg.APIKey, cfg.CORSOrigin)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(context.Background(), err, "HTTP server exited with error")
			stop()
			return
		}
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
		}
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
