package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
)

// MemoryBookingRepository implements the capacity ledger in memory.
// This is useful for testing and development. Slot serialization uses one
// mutex per (store, slot) key, matching the scope of the Postgres advisory
// lock.
type MemoryBookingRepository struct {
	bookings map[int64]*domain.Booking
	nextID   int64
	mu       sync.RWMutex

	slotMu sync.Mutex
	slots  map[string]*sync.Mutex
}

// NewMemoryBookingRepository creates a new in-memory booking repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[int64]*domain.Booking),
		slots:    make(map[string]*sync.Mutex),
	}
}

func (r *MemoryBookingRepository) slotLock(storeID string, slotAt time.Time) *sync.Mutex {
	key := slotKey(storeID, slotAt)
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	if mu, ok := r.slots[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	r.slots[key] = mu
	return mu
}

// WithSlotLock serializes fn against other admissions for the same slot
func (r *MemoryBookingRepository) WithSlotLock(ctx context.Context, storeID string, slotAt time.Time, fn func(ledger BookingRepository) error) error {
	mu := r.slotLock(storeID, slotAt)
	mu.Lock()
	defer mu.Unlock()
	return fn(r)
}

// CurrentLoad returns the committed seat load for a store slot
func (r *MemoryBookingRepository) CurrentLoad(ctx context.Context, storeID string, slotAt time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	load := 0
	for _, b := range r.bookings {
		if b.StoreID == storeID && b.SlotAt.Equal(slotAt) && b.State == domain.StateReserved {
			load += b.PartySize
		}
	}
	return load, nil
}

// Create stores a booking and assigns the next identity
func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	booking.ID = r.nextID

	b := *booking
	r.bookings[booking.ID] = &b
	return nil
}

// GetByID retrieves a booking by its identity
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, exists := r.bookings[id]
	if !exists {
		return nil, domain.ErrBookingNotFound
	}

	b := *booking
	return &b, nil
}

// GetByUserID retrieves all bookings for a user, newest first
func (r *MemoryBookingRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bookings []*domain.Booking
	for _, booking := range r.bookings {
		if booking.UserID == userID {
			b := *booking
			bookings = append(bookings, &b)
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].ID > bookings[j].ID
	})
	return bookings, nil
}

// UpdateState persists a state change for a booking
func (r *MemoryBookingRepository) UpdateState(ctx context.Context, id int64, state domain.BookingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, exists := r.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}

	booking.State = state
	booking.UpdatedAt = time.Now()
	return nil
}

// ListReservedBefore returns reserved bookings with slot at or before cutoff
func (r *MemoryBookingRepository) ListReservedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bookings []*domain.Booking
	for _, booking := range r.bookings {
		if booking.State == domain.StateReserved && !booking.SlotAt.After(cutoff) {
			b := *booking
			bookings = append(bookings, &b)
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].SlotAt.Before(bookings[j].SlotAt)
	})
	return bookings, nil
}
