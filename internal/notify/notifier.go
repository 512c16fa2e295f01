package notify

import (
	"context"
	"fmt"

	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/pkg/logger"
	"github.com/talking-potato/booking-service/pkg/retry"
)

// ContactDirectory resolves a requester's phone number from the identity
// provider. An empty number with a nil error means the user has no phone
// on file.
type ContactDirectory interface {
	PhoneNumber(ctx context.Context, userName string) (string, error)
}

// StoreDirectory resolves a store's display name.
type StoreDirectory interface {
	StoreName(ctx context.Context, storeID string) (string, error)
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// Notifier sends the post-confirmation notification for a booking.
type Notifier interface {
	NotifyConfirmed(ctx context.Context, booking *domain.Booking)
}

// BookingNotifier composes contact lookup, store lookup and SMS delivery.
// Every failure is logged and swallowed: notification runs after the
// booking is committed and must never affect its outcome.
type BookingNotifier struct {
	contacts ContactDirectory
	stores   StoreDirectory
	sender   SMSSender
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewBookingNotifier creates a notifier. maxRetries bounds SMS send
// attempts beyond the first.
func NewBookingNotifier(contacts ContactDirectory, stores StoreDirectory, sender SMSSender, maxRetries int, log *logger.Logger) *BookingNotifier {
	cfg := retry.DefaultConfig()
	if maxRetries >= 0 {
		cfg.MaxRetries = maxRetries
	}
	return &BookingNotifier{
		contacts: contacts,
		stores:   stores,
		sender:   sender,
		retrier:  retry.New(cfg),
		log:      log,
	}
}

// NotifyConfirmed sends the confirmation SMS for a freshly admitted
// booking. Missing phone numbers and lookup failures end the attempt
// quietly; send failures are retried a bounded number of times.
func (n *BookingNotifier) NotifyConfirmed(ctx context.Context, booking *domain.Booking) {
	phone, err := n.contacts.PhoneNumber(ctx, booking.UserName)
	if err != nil {
		n.log.WarnContext(ctx, "phone number lookup failed, skipping notification",
			"user_name", booking.UserName,
			"booking_num", booking.ID,
			"error", err,
		)
		return
	}
	if phone == "" {
		n.log.InfoContext(ctx, "user has no phone number on file, skipping notification",
			"user_name", booking.UserName,
			"booking_num", booking.ID,
		)
		return
	}

	storeName := n.storeName(ctx, booking.StoreID)
	message := ConfirmationMessage(storeName, booking)

	err = n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.sender.Send(ctx, phone, message)
	})
	if err != nil {
		n.log.WarnContext(ctx, "confirmation SMS delivery failed",
			"booking_num", booking.ID,
			"error", err,
		)
		return
	}

	n.log.InfoContext(ctx, "confirmation SMS sent",
		"booking_num", booking.ID,
		"store_id", booking.StoreID,
	)
}

// storeName resolves the store's display name, falling back to a
// placeholder built from the ID when the directory is unavailable.
func (n *BookingNotifier) storeName(ctx context.Context, storeID string) string {
	name, err := n.stores.StoreName(ctx, storeID)
	if err != nil || name == "" {
		if err != nil {
			n.log.WarnContext(ctx, "store name lookup failed, using fallback",
				"store_id", storeID,
				"error", err,
			)
		}
		return FallbackStoreName(storeID)
	}
	return name
}

// ConfirmationMessage formats the confirmation SMS body. The slot is
// rendered to hour precision.
func ConfirmationMessage(storeName string, booking *domain.Booking) string {
	return fmt.Sprintf("[%s] Your reservation for %d seat(s) at %s is confirmed.",
		storeName,
		booking.PartySize,
		booking.SlotAt.Format("2006-01-02 15:00"),
	)
}

// FallbackStoreName is used when the store directory cannot be reached.
func FallbackStoreName(storeID string) string {
	return "Talking Potato " + storeID
}
