package dto

import (
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
)

// BookingRequest is the queue message body for an asynchronous booking.
// TotalSeats is the store's capacity at submission time, supplied by the
// caller side; the consumer does not look it up. DedupToken is a unique
// caller-supplied token per submission attempt.
type BookingRequest struct {
	StoreID    string    `json:"store_id" binding:"required"`
	SlotAt     time.Time `json:"slot_at" binding:"required"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	PartySize  int       `json:"party_size" binding:"required,min=1"`
	TotalSeats int       `json:"total_seats" binding:"required,min=1"`
	DedupToken string    `json:"dedup_token"`
}

// OutcomeStatus is the status of an outcome event
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// OutcomeEvent is the one-shot result pushed to the requester's live
// session after asynchronous processing completes.
type OutcomeEvent struct {
	Status    OutcomeStatus `json:"status"`
	Message   string        `json:"message"`
	BookingID *int64        `json:"booking_num,omitempty"`
}

// NewSuccessOutcome builds a success outcome for a created booking
func NewSuccessOutcome(message string, bookingID int64) *OutcomeEvent {
	return &OutcomeEvent{
		Status:    OutcomeSuccess,
		Message:   message,
		BookingID: &bookingID,
	}
}

// NewFailureOutcome builds a failure outcome
func NewFailureOutcome(message string) *OutcomeEvent {
	return &OutcomeEvent{
		Status:  OutcomeFailure,
		Message: message,
	}
}

// CreateBookingRequest is the HTTP request body for submitting a booking
type CreateBookingRequest struct {
	StoreID    string    `json:"store_id" binding:"required"`
	SlotAt     time.Time `json:"slot_at" binding:"required"`
	PartySize  int       `json:"party_size" binding:"required,min=1"`
	TotalSeats int       `json:"total_seats" binding:"required,min=1"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	BookingNum int64     `json:"booking_num"`
	UserID     string    `json:"user_id"`
	StoreID    string    `json:"store_id"`
	SlotAt     time.Time `json:"slot_at"`
	PartySize  int       `json:"party_size"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookingListItem is the compact booking shape for list responses
type BookingListItem struct {
	BookingNum int64     `json:"booking_num"`
	StoreID    string    `json:"store_id"`
	SlotAt     time.Time `json:"slot_at"`
	State      string    `json:"state"`
}

// SeatLoadResponse reports the committed seat load for a store slot
type SeatLoadResponse struct {
	StoreID       string    `json:"store_id"`
	SlotAt        time.Time `json:"slot_at"`
	ReservedSeats int       `json:"reserved_seats"`
}

// FromDomain converts a domain Booking to a BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		BookingNum: b.ID,
		UserID:     b.UserID,
		StoreID:    b.StoreID,
		SlotAt:     b.SlotAt,
		PartySize:  b.PartySize,
		State:      b.State.String(),
		CreatedAt:  b.CreatedAt,
	}
}

// ListItemFromDomain converts a domain Booking to a BookingListItem
func ListItemFromDomain(b *domain.Booking) *BookingListItem {
	return &BookingListItem{
		BookingNum: b.ID,
		StoreID:    b.StoreID,
		SlotAt:     b.SlotAt,
		State:      b.State.String(),
	}
}
