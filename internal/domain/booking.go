package domain

import (
	"time"
)

// BookingState represents the lifecycle state of a booking
type BookingState string

const (
	StateReserved  BookingState = "reserved"
	StateCanceled  BookingState = "canceled"
	StateCompleted BookingState = "completed"
)

// String returns the string representation of the state
func (s BookingState) String() string {
	return string(s)
}

// IsValid checks if the state is a known state
func (s BookingState) IsValid() bool {
	switch s {
	case StateReserved, StateCanceled, StateCompleted:
		return true
	}
	return false
}

// IsTerminal checks if the state allows no further transitions
func (s BookingState) IsTerminal() bool {
	return s == StateCanceled || s == StateCompleted
}

// Booking represents one seat reservation at a store for a time slot.
// ID is assigned by the ledger at creation and never reused.
type Booking struct {
	ID        int64        `json:"booking_num"`
	UserID    string       `json:"user_id"`
	UserName  string       `json:"user_name,omitempty"`
	StoreID   string       `json:"store_id"`
	SlotAt    time.Time    `json:"slot_at"`
	PartySize int          `json:"party_size"`
	State     BookingState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewBooking creates a booking in the initial reserved state.
// SlotAt is expected at minute granularity (seconds zeroed by callers).
func NewBooking(userID, userName, storeID string, slotAt time.Time, partySize int) *Booking {
	now := time.Now()
	return &Booking{
		UserID:    userID,
		UserName:  userName,
		StoreID:   storeID,
		SlotAt:    slotAt,
		PartySize: partySize,
		State:     StateReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate validates booking attributes
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrInvalidUserID
	}
	if b.StoreID == "" {
		return ErrInvalidStoreID
	}
	if b.PartySize <= 0 {
		return ErrInvalidPartySize
	}
	if b.SlotAt.IsZero() {
		return ErrInvalidSlot
	}
	return nil
}

// CanTransitionTo reports whether a transition to next is allowed at now.
// Only reserved bookings may move; completion additionally requires the
// slot time to have passed. Cancellation carries no slot-time guard.
func (b *Booking) CanTransitionTo(next BookingState, now time.Time) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if b.State.IsTerminal() || next == StateReserved {
		return ErrInvalidTransition
	}
	if next == StateCompleted && b.SlotAt.After(now) {
		return ErrInvalidTransition
	}
	return nil
}

// TransitionTo applies a state transition after validating it
func (b *Booking) TransitionTo(next BookingState, now time.Time) error {
	if err := b.CanTransitionTo(next, now); err != nil {
		return err
	}
	b.State = next
	b.UpdatedAt = now
	return nil
}

// TruncateSlot normalizes a slot time to minute granularity
func TruncateSlot(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
