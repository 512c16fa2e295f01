package di

import (
	"github.com/talking-potato/booking-service/internal/handler"
	"github.com/talking-potato/booking-service/internal/notify"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/internal/service"
	"github.com/talking-potato/booking-service/pkg/database"
	"github.com/talking-potato/booking-service/pkg/kafka"
	"github.com/talking-potato/booking-service/pkg/logger"
	pkgredis "github.com/talking-potato/booking-service/pkg/redis"
)

// Container holds all dependencies for the booking API service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer

	// Repositories
	Ledger repository.Ledger

	// Sessions
	Sessions *notify.SessionRegistry

	// Services
	BookingService *service.BookingService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB           *database.PostgresDB
	Redis        *pkgredis.Client
	Producer     *kafka.Producer
	Ledger       repository.Ledger
	Sessions     *notify.SessionRegistry
	RequestTopic string
	Logger       *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Ledger:   cfg.Ledger,
		Sessions: cfg.Sessions,
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c.BookingService = service.NewBookingService(c.Ledger, log)

	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, c.Producer, c.Sessions, cfg.RequestTopic)

	return c
}
