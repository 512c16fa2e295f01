package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/pkg/logger"
)

func newTestAdmissionService() (*AdmissionService, *repository.MemoryBookingRepository) {
	repo := repository.NewMemoryBookingRepository()
	return NewAdmissionService(repo, logger.Get()), repo
}

func bookingRequest(userID string, partySize, totalSeats int) *dto.BookingRequest {
	return &dto.BookingRequest{
		StoreID:    "store-1",
		SlotAt:     time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		UserID:     userID,
		UserName:   userID,
		PartySize:  partySize,
		TotalSeats: totalSeats,
	}
}

func TestAdmissionService_Admit(t *testing.T) {
	ctx := context.Background()

	t.Run("admits when capacity is free", func(t *testing.T) {
		svc, _ := newTestAdmissionService()

		booking, err := svc.Admit(ctx, bookingRequest("user-1", 4, 10))
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if booking.ID == 0 {
			t.Error("expected assigned booking ID")
		}
		if booking.State != domain.StateReserved {
			t.Errorf("state = %q, want %q", booking.State, domain.StateReserved)
		}
	})

	t.Run("admits an exact fit", func(t *testing.T) {
		svc, _ := newTestAdmissionService()

		if _, err := svc.Admit(ctx, bookingRequest("user-1", 6, 10)); err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}
		if _, err := svc.Admit(ctx, bookingRequest("user-2", 4, 10)); err != nil {
			t.Fatalf("exact-fit Admit() error = %v", err)
		}
	})

	t.Run("rejects one seat over capacity", func(t *testing.T) {
		svc, _ := newTestAdmissionService()

		if _, err := svc.Admit(ctx, bookingRequest("user-1", 6, 10)); err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}
		_, err := svc.Admit(ctx, bookingRequest("user-2", 5, 10))
		if !errors.Is(err, domain.ErrCapacityExceeded) {
			t.Fatalf("Admit() error = %v, want ErrCapacityExceeded", err)
		}
	})

	t.Run("rejection writes nothing to the ledger", func(t *testing.T) {
		svc, repo := newTestAdmissionService()

		if _, err := svc.Admit(ctx, bookingRequest("user-1", 8, 10)); err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}
		if _, err := svc.Admit(ctx, bookingRequest("user-2", 3, 10)); err == nil {
			t.Fatal("expected rejection")
		}

		slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
		load, err := repo.CurrentLoad(ctx, "store-1", slot)
		if err != nil {
			t.Fatalf("CurrentLoad() error = %v", err)
		}
		if load != 8 {
			t.Errorf("load = %d after rejection, want 8", load)
		}
	})

	t.Run("cancellation frees capacity for admission", func(t *testing.T) {
		svc, repo := newTestAdmissionService()

		first, err := svc.Admit(ctx, bookingRequest("user-1", 6, 10))
		if err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}
		if _, err := svc.Admit(ctx, bookingRequest("user-2", 5, 10)); !errors.Is(err, domain.ErrCapacityExceeded) {
			t.Fatalf("expected rejection before cancel, got %v", err)
		}

		if err := repo.UpdateState(ctx, first.ID, domain.StateCanceled); err != nil {
			t.Fatalf("UpdateState() error = %v", err)
		}

		if _, err := svc.Admit(ctx, bookingRequest("user-2", 5, 10)); err != nil {
			t.Fatalf("Admit() after cancel error = %v", err)
		}
	})

	t.Run("slots are independent", func(t *testing.T) {
		svc, _ := newTestAdmissionService()

		if _, err := svc.Admit(ctx, bookingRequest("user-1", 10, 10)); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}

		other := bookingRequest("user-2", 10, 10)
		other.SlotAt = other.SlotAt.Add(time.Hour)
		if _, err := svc.Admit(ctx, other); err != nil {
			t.Fatalf("Admit() for different slot error = %v", err)
		}
	})

	t.Run("slot time is truncated to the minute", func(t *testing.T) {
		svc, repo := newTestAdmissionService()

		req := bookingRequest("user-1", 2, 10)
		req.SlotAt = req.SlotAt.Add(30 * time.Second)
		booking, err := svc.Admit(ctx, req)
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if booking.SlotAt.Second() != 0 {
			t.Errorf("slot not truncated: %v", booking.SlotAt)
		}

		load, err := repo.CurrentLoad(ctx, "store-1", time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("CurrentLoad() error = %v", err)
		}
		if load != 2 {
			t.Errorf("load = %d at truncated slot, want 2", load)
		}
	})
}

func TestAdmissionService_AdmitValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAdmissionService()

	tests := []struct {
		name    string
		mutate  func(req *dto.BookingRequest)
		wantErr error
	}{
		{
			name:    "missing user",
			mutate:  func(req *dto.BookingRequest) { req.UserID = "" },
			wantErr: domain.ErrInvalidUserID,
		},
		{
			name:    "missing store",
			mutate:  func(req *dto.BookingRequest) { req.StoreID = "" },
			wantErr: domain.ErrInvalidStoreID,
		},
		{
			name:    "zero party size",
			mutate:  func(req *dto.BookingRequest) { req.PartySize = 0 },
			wantErr: domain.ErrInvalidPartySize,
		},
		{
			name:    "zero capacity",
			mutate:  func(req *dto.BookingRequest) { req.TotalSeats = 0 },
			wantErr: domain.ErrInvalidCapacity,
		},
		{
			name:    "zero slot",
			mutate:  func(req *dto.BookingRequest) { req.SlotAt = time.Time{} },
			wantErr: domain.ErrInvalidSlot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bookingRequest("user-1", 2, 10)
			tt.mutate(req)

			_, err := svc.Admit(ctx, req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Admit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdmissionService_ConcurrentAdmitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestAdmissionService()

	const totalSeats = 10
	const attempts = 50

	var wg sync.WaitGroup
	admitted := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := bookingRequest("user-concurrent", 1, totalSeats)
			if _, err := svc.Admit(ctx, req); err == nil {
				admitted[i] = true
			}
		}(i)
	}
	wg.Wait()

	var count int
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != totalSeats {
		t.Errorf("admitted %d bookings, want exactly %d", count, totalSeats)
	}

	slot := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	load, err := repo.CurrentLoad(ctx, "store-1", slot)
	if err != nil {
		t.Fatalf("CurrentLoad() error = %v", err)
	}
	if load > totalSeats {
		t.Errorf("committed load %d exceeds capacity %d", load, totalSeats)
	}
}
