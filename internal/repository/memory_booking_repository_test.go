package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talking-potato/booking-service/internal/domain"
)

func newBooking(userID string, slotAt time.Time, partySize int) *domain.Booking {
	return domain.NewBooking(userID, userID, "store-1", slotAt, partySize)
}

func TestMemoryBookingRepository_CreateAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	first := newBooking("user-1", slot, 2)
	second := newBooking("user-2", slot, 3)

	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestMemoryBookingRepository_CurrentLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	reserved := newBooking("user-1", slot, 4)
	require.NoError(t, repo.Create(ctx, reserved))
	require.NoError(t, repo.Create(ctx, newBooking("user-2", slot, 2)))
	require.NoError(t, repo.Create(ctx, newBooking("user-3", slot.Add(time.Hour), 5)))

	canceled := newBooking("user-4", slot, 3)
	require.NoError(t, repo.Create(ctx, canceled))
	require.NoError(t, repo.UpdateState(ctx, canceled.ID, domain.StateCanceled))

	load, err := repo.CurrentLoad(ctx, "store-1", slot)
	require.NoError(t, err)
	assert.Equal(t, 6, load, "only reserved bookings at the exact slot count")

	otherStore, err := repo.CurrentLoad(ctx, "store-2", slot)
	require.NoError(t, err)
	assert.Zero(t, otherStore)
}

func TestMemoryBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	b := newBooking("user-1", slot, 2)
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	// Reads return copies; mutating the result must not leak back
	got.State = domain.StateCanceled
	again, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, again.State)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestMemoryBookingRepository_GetByUserID_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	first := newBooking("user-1", slot, 2)
	second := newBooking("user-1", slot.Add(time.Hour), 2)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, newBooking("user-2", slot, 2)))

	bookings, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, second.ID, bookings[0].ID)
	assert.Equal(t, first.ID, bookings[1].ID)
}

func TestMemoryBookingRepository_UpdateState(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	b := newBooking("user-1", slot, 2)
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.UpdateState(ctx, b.ID, domain.StateCompleted))
	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)

	assert.ErrorIs(t, repo.UpdateState(ctx, 9999, domain.StateCanceled), domain.ErrBookingNotFound)
}

func TestMemoryBookingRepository_ListReservedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	cutoff := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	past := newBooking("user-1", cutoff.Add(-time.Hour), 2)
	atCutoff := newBooking("user-2", cutoff, 2)
	future := newBooking("user-3", cutoff.Add(time.Minute), 2)
	require.NoError(t, repo.Create(ctx, past))
	require.NoError(t, repo.Create(ctx, atCutoff))
	require.NoError(t, repo.Create(ctx, future))

	canceled := newBooking("user-4", cutoff.Add(-time.Hour), 2)
	require.NoError(t, repo.Create(ctx, canceled))
	require.NoError(t, repo.UpdateState(ctx, canceled.ID, domain.StateCanceled))

	due, err := repo.ListReservedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Sorted by slot time ascending
	assert.Equal(t, past.ID, due[0].ID)
	assert.Equal(t, atCutoff.ID, due[1].ID)
}

func TestMemoryBookingRepository_WithSlotLockSerializes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	const writers = 20
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.WithSlotLock(ctx, "store-1", slot, func(ledger BookingRepository) error {
				// Unsynchronized increment; the slot lock is the only guard
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return ledger.Create(ctx, newBooking("user-1", slot, 1))
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, writers, counter, "critical sections for one slot must not interleave")

	load, err := repo.CurrentLoad(ctx, "store-1", slot)
	require.NoError(t, err)
	assert.Equal(t, writers, load)
}
