package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/metrics"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/pkg/logger"
)

// SweeperConfig contains configuration for the lifecycle sweeper
type SweeperConfig struct {
	// Interval is the time between sweeps
	Interval time.Duration
	// Timezone is the fixed time zone sweeps are evaluated in, so that
	// "the slot has passed" means the same thing on every host
	Timezone string
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: time.Hour,
		Timezone: "Asia/Seoul",
	}
}

// SweeperWorker periodically moves reserved bookings whose slot time has
// passed into the completed state. A sweep is idempotent: bookings
// completed by a previous sweep are never selected again, so overlapping
// or repeated sweeps cannot double-complete.
type SweeperWorker struct {
	repo     repository.BookingRepository
	config   *SweeperConfig
	location *time.Location
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// Stats
	totalCompleted  int64
	totalFailed     int64
	totalSeatsFreed int64
	lastSweepTime   time.Time
	lastSweepCount  int
}

// NewSweeperWorker creates a new sweeper worker. An unknown time zone is
// an error: silently falling back to host-local time would make sweeps
// host-dependent.
func NewSweeperWorker(repo repository.BookingRepository, config *SweeperConfig) (*SweeperWorker, error) {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load sweeper timezone %q: %w", config.Timezone, err)
	}

	return &SweeperWorker{
		repo:     repo,
		config:   config,
		location: location,
		log:      logger.Get(),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start starts the sweeper worker
func (w *SweeperWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweeper worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting sweeper worker",
		"interval", w.config.Interval,
		"timezone", w.config.Timezone,
	)

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the sweeper worker
func (w *SweeperWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping sweeper worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("sweeper worker stopped")
}

func (w *SweeperWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweeperWorker) sweep(ctx context.Context) {
	now := time.Now().In(w.location)
	completed, failed, err := w.Sweep(ctx, now)
	if err != nil {
		w.log.Error("sweep failed", "error", err)
		return
	}
	if completed > 0 || failed > 0 {
		w.log.Info("sweep finished",
			"completed", completed,
			"failed", failed,
		)
	}
}

// Sweep completes every reserved booking whose slot is at or before now.
// Per-booking failures are logged and skipped; the sweep continues, and
// the next run picks the stragglers up again.
func (w *SweeperWorker) Sweep(ctx context.Context, now time.Time) (completed, failed int, err error) {
	w.mu.Lock()
	w.lastSweepTime = now
	w.mu.Unlock()

	due, err := w.repo.ListReservedBefore(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list due bookings: %w", err)
	}

	seatsFreed := 0
	for _, booking := range due {
		if terr := booking.TransitionTo(domain.StateCompleted, now); terr != nil {
			// Selected rows are reserved with a past slot, so the
			// transition only fails on a concurrent state change
			w.log.Warn("skipping booking, transition rejected",
				"booking_num", booking.ID,
				"state", booking.State,
				"error", terr,
			)
			failed++
			continue
		}
		if uerr := w.repo.UpdateState(ctx, booking.ID, domain.StateCompleted); uerr != nil {
			if domain.IsNotFoundError(uerr) {
				// Canceled or completed concurrently; nothing to do
				continue
			}
			w.log.Error("failed to complete booking",
				"booking_num", booking.ID,
				"error", uerr,
			)
			failed++
			continue
		}
		completed++
		seatsFreed += booking.PartySize
	}

	w.mu.Lock()
	w.totalCompleted += int64(completed)
	w.totalFailed += int64(failed)
	w.totalSeatsFreed += int64(seatsFreed)
	w.lastSweepCount = completed
	w.mu.Unlock()

	if completed > 0 {
		// Completed bookings leave the reserved state; their seats come
		// off the active-reservations gauge with them
		metrics.RecordCompletions(ctx, int64(completed), int64(seatsFreed))
	}
	return completed, failed, nil
}

// GetStats returns worker statistics
func (w *SweeperWorker) GetStats() *SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &SweeperStats{
		IsRunning:       w.running,
		TotalCompleted:  w.totalCompleted,
		TotalFailed:     w.totalFailed,
		TotalSeatsFreed: w.totalSeatsFreed,
		LastSweepTime:   w.lastSweepTime,
		LastSweepCount:  w.lastSweepCount,
	}
}

// SweeperStats contains worker statistics
type SweeperStats struct {
	IsRunning       bool      `json:"is_running"`
	TotalCompleted  int64     `json:"total_completed"`
	TotalFailed     int64     `json:"total_failed"`
	TotalSeatsFreed int64     `json:"total_seats_freed"`
	LastSweepTime   time.Time `json:"last_sweep_time"`
	LastSweepCount  int       `json:"last_sweep_count"`
}
