package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking state transition")

	// Admission errors
	ErrCapacityExceeded = errors.New("seat capacity exceeded for this slot")

	// Validation errors
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidStoreID   = errors.New("invalid store id")
	ErrInvalidPartySize = errors.New("party size must be greater than zero")
	ErrInvalidSlot      = errors.New("invalid slot time")
	ErrInvalidCapacity  = errors.New("store capacity must be greater than zero")

	// Notification errors (always non-fatal to the booking outcome)
	ErrNoContactAddress   = errors.New("no contact address for user")
	ErrNotificationFailed = errors.New("notification delivery failed")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidStoreID) ||
		errors.Is(err, ErrInvalidPartySize) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrInvalidCapacity)
}

// IsAdmissionRejection checks if the error is an expected capacity rejection
// rather than a system fault
func IsAdmissionRejection(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsInvalidTransition checks if the error is a rejected state transition
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
