package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/talking-potato/booking-service/internal/consumer"
	"github.com/talking-potato/booking-service/internal/di"
	"github.com/talking-potato/booking-service/internal/metrics"
	"github.com/talking-potato/booking-service/internal/middleware"
	"github.com/talking-potato/booking-service/internal/notify"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/internal/service"
	"github.com/talking-potato/booking-service/pkg/config"
	"github.com/talking-potato/booking-service/pkg/database"
	"github.com/talking-potato/booking-service/pkg/kafka"
	"github.com/talking-potato/booking-service/pkg/logger"
	pkgredis "github.com/talking-potato/booking-service/pkg/redis"
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
		ServiceName: "booking-api",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting booking API service")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal("failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if err := metrics.Init(); err != nil {
		appLog.Fatal("failed to initialize metrics", "error", err)
	}

	// Initialize database connection
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer db.Close()
	appLog.Info("database connected",
		"min_conns", cfg.Database.MinConns,
		"max_conns", cfg.Database.MaxConns,
	)

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Fatal("redis connection failed", "error", err)
	}
	defer redisClient.Close()
	appLog.Info("redis connected", "addr", cfg.Redis.Addr())

	// Initialize Kafka producer for booking requests
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Fatal("kafka connection failed", "error", err)
	}
	defer producer.Close()
	appLog.Info("kafka producer connected", "topic", cfg.Kafka.RequestTopic)

	// Build dependency injection container
	ledger := repository.NewPostgresBookingRepository(db.Pool())
	sessions := notify.NewSessionRegistry(cfg.Session.IdleTimeout)
	defer sessions.Close()

	container := di.NewContainer(&di.ContainerConfig{
		DB:           db,
		Redis:        redisClient,
		Producer:     producer,
		Ledger:       ledger,
		Sessions:     sessions,
		RequestTopic: cfg.Kafka.RequestTopic,
		Logger:       appLog,
	})

	// Start the request consumer in-process: outcomes must reach the
	// session registry the SSE handler registers against
	admission := service.NewAdmissionService(ledger, appLog)
	notifier := notify.NewBookingNotifier(
		notify.NewStaticContactDirectory(nil),
		notify.NewHTTPStoreDirectory(cfg.Notify.StoreDirectoryURL, cfg.Notify.SendTimeout),
		notify.NewLogSMSSender(appLog),
		cfg.Notify.MaxRetries,
		appLog,
	)
	dedup := repository.NewRedisDedupStore(redisClient, repository.DefaultDedupTTL)

	requestConsumer, err := consumer.NewBookingConsumer(ctx, &consumer.BookingConsumerConfig{
		Brokers:   cfg.Kafka.Brokers,
		GroupID:   cfg.Kafka.ConsumerGroup,
		ClientID:  cfg.Kafka.ClientID,
		Topic:     cfg.Kafka.RequestTopic,
		Admitter:  admission,
		Dedup:     dedup,
		Deliverer: sessions,
		Notifier:  notifier,
		Logger:    appLog,
	})
	if err != nil {
		appLog.Fatal("failed to create booking consumer", "error", err)
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		if err := requestConsumer.Start(consumerCtx); err != nil && err != context.Canceled {
			appLog.Error("booking consumer stopped", "error", err)
		}
	}()

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	}

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// API routes
	api := router.Group("/api")
	api.Use(middleware.Auth(cfg.JWT.Secret))
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", container.BookingHandler.CreateBooking)
			bookings.GET("", container.BookingHandler.ListBookings)
			bookings.GET("/seats", container.BookingHandler.GetSeatLoad)
			bookings.GET("/:bookingNum", container.BookingHandler.GetBooking)
			bookings.DELETE("/:bookingNum", container.BookingHandler.CancelBooking)
		}

		api.GET("/sse/booking-status", container.BookingHandler.StreamOutcome)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// WriteTimeout must exceed the SSE session window or open
		// streams are cut off mid-wait
		WriteTimeout: cfg.Session.IdleTimeout + cfg.Server.WriteTimeout,
	}

	go func() {
		appLog.Info("booking API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down server")

	stopConsumer()
	requestConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal("server forced to shutdown", "error", err)
	}

	appLog.Info("server exited gracefully")
}
