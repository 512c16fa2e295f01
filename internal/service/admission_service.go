package service

import (
	"context"
	"fmt"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/metrics"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/pkg/logger"
	"github.com/talking-potato/booking-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdmissionService decides whether a booking request fits within its
// store slot's capacity and, if so, commits the reservation. The check
// and the insert run inside the ledger's per-slot critical section, so
// two requests for the same slot can never both read the old load.
type AdmissionService struct {
	ledger repository.Ledger
	log    *logger.Logger
}

// NewAdmissionService creates an admission service
func NewAdmissionService(ledger repository.Ledger, log *logger.Logger) *AdmissionService {
	return &AdmissionService{ledger: ledger, log: log}
}

// Admit validates the request and attempts to reserve seats.
// Returns the created booking, or domain.ErrCapacityExceeded when the
// remaining capacity cannot seat the party.
func (s *AdmissionService) Admit(ctx context.Context, req *dto.BookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "AdmissionService.Admit")
	defer span.End()
	span.SetAttributes(
		attribute.String("store_id", req.StoreID),
		attribute.Int("party_size", req.PartySize),
	)

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	slotAt := domain.TruncateSlot(req.SlotAt)
	start := time.Now()

	var booking *domain.Booking
	err := s.ledger.WithSlotLock(ctx, req.StoreID, slotAt, func(ledger repository.BookingRepository) error {
		load, err := ledger.CurrentLoad(ctx, req.StoreID, slotAt)
		if err != nil {
			return fmt.Errorf("failed to read current load: %w", err)
		}

		if req.TotalSeats-load < req.PartySize {
			return fmt.Errorf("%w: %d seats reserved of %d, requested %d",
				domain.ErrCapacityExceeded, load, req.TotalSeats, req.PartySize)
		}

		booking = domain.NewBooking(req.UserID, req.UserName, req.StoreID, slotAt, req.PartySize)
		if err := ledger.Create(ctx, booking); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return nil
	})
	if err != nil {
		if domain.IsAdmissionRejection(err) {
			metrics.RecordRejection(ctx, req.StoreID)
			s.log.InfoContext(ctx, "booking rejected for capacity",
				"store_id", req.StoreID,
				"slot_at", slotAt,
				"party_size", req.PartySize,
			)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "admission failed")
		}
		return nil, err
	}

	metrics.RecordAdmission(ctx, req.StoreID, req.PartySize, time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "")

	s.log.InfoContext(ctx, "booking admitted",
		"booking_num", booking.ID,
		"store_id", booking.StoreID,
		"slot_at", booking.SlotAt,
		"party_size", booking.PartySize,
	)
	return booking, nil
}

func validateRequest(req *dto.BookingRequest) error {
	if req.UserID == "" {
		return domain.ErrInvalidUserID
	}
	if req.StoreID == "" {
		return domain.ErrInvalidStoreID
	}
	if req.PartySize <= 0 {
		return domain.ErrInvalidPartySize
	}
	if req.TotalSeats <= 0 {
		return domain.ErrInvalidCapacity
	}
	if req.SlotAt.IsZero() {
		return domain.ErrInvalidSlot
	}
	return nil
}
