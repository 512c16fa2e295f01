package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talking-potato/booking-service/internal/metrics"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/internal/worker"
	"github.com/talking-potato/booking-service/pkg/config"
	"github.com/talking-potato/booking-service/pkg/database"
	"github.com/talking-potato/booking-service/pkg/logger"
	"github.com/talking-potato/booking-service/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "state-sweeper",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting state sweeper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "state-sweeper",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal("failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if err := metrics.Init(); err != nil {
		appLog.Fatal("failed to initialize metrics", "error", err)
	}

	// Initialize database connection; the sweeper needs only a small pool
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      5,
		MinConns:      1,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer db.Close()
	appLog.Info("database connected")

	bookingRepo := repository.NewPostgresBookingRepository(db.Pool())

	sweeper, err := worker.NewSweeperWorker(bookingRepo, &worker.SweeperConfig{
		Interval: cfg.Sweeper.Interval,
		Timezone: cfg.Sweeper.Timezone,
	})
	if err != nil {
		appLog.Fatal("failed to create sweeper", "error", err)
	}

	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal("failed to start sweeper", "error", err)
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down sweeper")
	sweeper.Stop()

	stats := sweeper.GetStats()
	appLog.Info("sweeper exited gracefully",
		"total_completed", stats.TotalCompleted,
		"total_failed", stats.TotalFailed,
	)
}
