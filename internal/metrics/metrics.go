package metrics

import (
	"context"
	"sync"

	"github.com/talking-potato/booking-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Admission counters
	BookingsAdmitted *telemetry.Counter
	BookingsRejected *telemetry.Counter

	// Lifecycle counters
	BookingsCanceled  *telemetry.Counter
	BookingsCompleted *telemetry.Counter

	// Outcome delivery counters
	OutcomesDelivered *telemetry.Counter
	OutcomesDropped   *telemetry.Counter

	// Consumer counters
	DuplicateRequests *telemetry.Counter

	// Histograms
	AdmissionDuration *telemetry.Histogram

	// Gauges
	ActiveReservations *telemetry.UpDownCounter
	OpenSessions       *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsAdmitted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_admissions_total",
		Description: "Total number of bookings admitted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_rejections_total",
		Description: "Total number of bookings rejected for capacity",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCanceled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_cancellations_total",
		Description: "Total number of bookings canceled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCompleted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_completions_total",
		Description: "Total number of bookings completed by the sweeper",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutcomesDelivered, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_outcomes_delivered_total",
		Description: "Outcome events delivered to a live session",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutcomesDropped, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_outcomes_dropped_total",
		Description: "Outcome events dropped because no session was open",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	DuplicateRequests, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_duplicate_requests_total",
		Description: "Queue messages skipped by the dedup token check",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AdmissionDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_admission_duration_seconds",
		Description: "Duration of the admission check-and-insert",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	ActiveReservations, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "booking_active_reservations",
		Description: "Bookings currently in the reserved state",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OpenSessions, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "booking_open_sessions",
		Description: "Open outcome delivery sessions",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordAdmission records a successful admission
func RecordAdmission(ctx context.Context, storeID string, partySize int, durationSeconds float64) {
	if BookingsAdmitted != nil {
		BookingsAdmitted.Inc(ctx, attribute.String("store_id", storeID))
	}
	if AdmissionDuration != nil {
		AdmissionDuration.Record(ctx, durationSeconds, attribute.String("store_id", storeID))
	}
	if ActiveReservations != nil {
		ActiveReservations.Add(ctx, int64(partySize))
	}
}

// RecordRejection records a capacity rejection
func RecordRejection(ctx context.Context, storeID string) {
	if BookingsRejected != nil {
		BookingsRejected.Inc(ctx, attribute.String("store_id", storeID))
	}
}

// RecordCancellation records a booking cancellation
func RecordCancellation(ctx context.Context, storeID string, partySize int) {
	if BookingsCanceled != nil {
		BookingsCanceled.Inc(ctx, attribute.String("store_id", storeID))
	}
	if ActiveReservations != nil {
		ActiveReservations.Add(ctx, -int64(partySize))
	}
}

// RecordCompletions records sweeper completions and releases the
// completed bookings' seats from the active-reservations gauge
func RecordCompletions(ctx context.Context, count, seats int64) {
	if BookingsCompleted != nil {
		BookingsCompleted.Add(ctx, count)
	}
	if ActiveReservations != nil && seats > 0 {
		ActiveReservations.Add(ctx, -seats)
	}
}

// RecordSessionOpened tracks a newly opened outcome session
func RecordSessionOpened(ctx context.Context) {
	if OpenSessions != nil {
		OpenSessions.Add(ctx, 1)
	}
}

// RecordSessionClosed tracks an outcome session closing, whatever the
// reason (delivery, replacement, idle timeout, caller release, shutdown)
func RecordSessionClosed(ctx context.Context) {
	if OpenSessions != nil {
		OpenSessions.Add(ctx, -1)
	}
}

// RecordOutcome records outcome delivery or drop
func RecordOutcome(ctx context.Context, delivered bool) {
	if delivered {
		if OutcomesDelivered != nil {
			OutcomesDelivered.Inc(ctx)
		}
		return
	}
	if OutcomesDropped != nil {
		OutcomesDropped.Inc(ctx)
	}
}

// RecordDuplicate records a dedup skip
func RecordDuplicate(ctx context.Context) {
	if DuplicateRequests != nil {
		DuplicateRequests.Inc(ctx)
	}
}
