package repository

import (
	"context"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
)

// BookingRepository is the capacity ledger: it reads and writes reservation
// records and aggregates committed seat load per (store, slot).
type BookingRepository interface {
	// CurrentLoad returns the sum of party sizes over reserved bookings
	// for a store slot. Canceled and completed bookings never count.
	CurrentLoad(ctx context.Context, storeID string, slotAt time.Time) (int, error)

	// Create persists a new booking and assigns its identity
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by its identity
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)

	// GetByUserID retrieves all bookings for a user, newest first
	GetByUserID(ctx context.Context, userID string) ([]*domain.Booking, error)

	// UpdateState persists a state change for a booking
	UpdateState(ctx context.Context, id int64, state domain.BookingState) error

	// ListReservedBefore returns reserved bookings whose slot time is at
	// or before the cutoff
	ListReservedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error)
}

// SlotLocker serializes an admission-critical section per (store, slot).
// The capacity read and the insert that depends on it must run inside one
// such section: two admissions for the same slot must not interleave, while
// admissions for different stores or slots commit concurrently.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, storeID string, slotAt time.Time, fn func(ledger BookingRepository) error) error
}

// Ledger combines the booking repository with its serialization contract
type Ledger interface {
	BookingRepository
	SlotLocker
}
