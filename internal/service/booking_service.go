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
)

// BookingService serves booking queries and owner-initiated cancellation.
type BookingService struct {
	repo repository.BookingRepository
	log  *logger.Logger
}

// NewBookingService creates a booking service
func NewBookingService(repo repository.BookingRepository, log *logger.Logger) *BookingService {
	return &BookingService{repo: repo, log: log}
}

// SeatLoad returns the committed seat load for a store slot. The slot is
// normalized to minute granularity before the lookup.
func (s *BookingService) SeatLoad(ctx context.Context, storeID string, slotAt time.Time) (*dto.SeatLoadResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.SeatLoad")
	defer span.End()

	if storeID == "" {
		return nil, domain.ErrInvalidStoreID
	}
	if slotAt.IsZero() {
		return nil, domain.ErrInvalidSlot
	}

	slot := domain.TruncateSlot(slotAt)
	load, err := s.repo.CurrentLoad(ctx, storeID, slot)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read seat load: %w", err)
	}

	return &dto.SeatLoadResponse{
		StoreID:       storeID,
		SlotAt:        slot,
		ReservedSeats: load,
	}, nil
}

// ListByUser returns all of a user's bookings, newest first.
func (s *BookingService) ListByUser(ctx context.Context, userID string) ([]*dto.BookingListItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.ListByUser")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	bookings, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	items := make([]*dto.BookingListItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, dto.ListItemFromDomain(b))
	}
	return items, nil
}

// GetForUser returns a single booking, restricted to its owner. A booking
// belonging to another user reads as not found.
func (s *BookingService) GetForUser(ctx context.Context, id int64, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.GetForUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_num", id))

	booking, err := s.ownedBooking(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return dto.FromDomain(booking), nil
}

// Cancel cancels a reserved booking on behalf of its owner. Cancellation
// is allowed at any time while the booking is reserved; terminal bookings
// return domain.ErrInvalidTransition.
func (s *BookingService) Cancel(ctx context.Context, id int64, userID string) error {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.Cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_num", id))

	booking, err := s.ownedBooking(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := booking.TransitionTo(domain.StateCanceled, time.Now()); err != nil {
		return err
	}
	if err := s.repo.UpdateState(ctx, id, domain.StateCanceled); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	metrics.RecordCancellation(ctx, booking.StoreID, booking.PartySize)
	s.log.InfoContext(ctx, "booking canceled",
		"booking_num", id,
		"store_id", booking.StoreID,
		"slot_at", booking.SlotAt,
	)
	return nil
}

func (s *BookingService) ownedBooking(ctx context.Context, id int64, userID string) (*domain.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Hide other users' bookings rather than reveal their existence
	if userID != "" && booking.UserID != userID {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}
