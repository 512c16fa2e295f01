package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/middleware"
	"github.com/talking-potato/booking-service/pkg/response"
	"github.com/talking-potato/booking-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingQueryService serves reads and owner-initiated cancellation.
type BookingQueryService interface {
	SeatLoad(ctx context.Context, storeID string, slotAt time.Time) (*dto.SeatLoadResponse, error)
	ListByUser(ctx context.Context, userID string) ([]*dto.BookingListItem, error)
	GetForUser(ctx context.Context, id int64, userID string) (*dto.BookingResponse, error)
	Cancel(ctx context.Context, id int64, userID string) error
}

// RequestProducer enqueues a booking request for asynchronous admission.
type RequestProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// OutcomeSessions opens one-shot outcome sessions per requester.
type OutcomeSessions interface {
	Register(userID string) (<-chan *dto.OutcomeEvent, func())
}

// BookingHandler handles booking HTTP requests. Submission is
// asynchronous: the request is enqueued keyed by user ID and the caller
// learns the outcome over its SSE session.
type BookingHandler struct {
	bookings BookingQueryService
	producer RequestProducer
	sessions OutcomeSessions
	topic    string
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingQueryService, producer RequestProducer, sessions OutcomeSessions, topic string) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		producer: producer,
		sessions: sessions,
		topic:    topic,
	}
}

// CreateBooking handles POST /api/bookings.
// Enqueues the request and returns 202; the outcome arrives on the
// caller's SSE session once admission has run.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		response.BadRequest(c, err.Error())
		return
	}

	msg := &dto.BookingRequest{
		StoreID:    req.StoreID,
		SlotAt:     domain.TruncateSlot(req.SlotAt),
		UserID:     userID,
		UserName:   c.GetString(middleware.ContextUserName),
		PartySize:  req.PartySize,
		TotalSeats: req.TotalSeats,
		DedupToken: uuid.NewString(),
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("store_id", req.StoreID),
		attribute.Int("party_size", req.PartySize),
	)

	// Keyed by user ID: one user's requests share a partition and are
	// admitted in submission order
	if err := h.producer.ProduceJSON(ctx, h.topic, userID, msg, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		response.InternalError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Accepted(c, gin.H{"status": "processing"})
}

// GetSeatLoad handles GET /api/bookings/seats?store_id=...&slot_at=...
// Reports the committed reserved seat count for a store slot.
func (h *BookingHandler) GetSeatLoad(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.seat_load")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	storeID := c.Query("store_id")
	slotAt, err := time.Parse(time.RFC3339, c.Query("slot_at"))
	if err != nil {
		response.BadRequest(c, "slot_at must be RFC 3339")
		return
	}

	load, err := h.bookings.SeatLoad(ctx, storeID, slotAt)
	if err != nil {
		span.RecordError(err)
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, load)
}

// ListBookings handles GET /api/bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextUserID)
	items, err := h.bookings.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, items)
}

// GetBooking handles GET /api/bookings/:bookingNum.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id, ok := h.bookingNum(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetForUser(ctx, id, c.GetString(middleware.ContextUserID))
	if err != nil {
		span.RecordError(err)
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// CancelBooking handles DELETE /api/bookings/:bookingNum.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id, ok := h.bookingNum(c)
	if !ok {
		return
	}

	if err := h.bookings.Cancel(ctx, id, c.GetString(middleware.ContextUserID)); err != nil {
		span.RecordError(err)
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"status": "canceled"})
}

// StreamOutcome handles GET /api/sse/booking-status.
// Opens the caller's one-shot outcome session and streams until the
// outcome arrives, the session times out, or the client disconnects.
func (h *BookingHandler) StreamOutcome(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "authentication required")
		return
	}

	events, release := h.sessions.Register(userID)
	defer release()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				// Session expired or was replaced
				c.SSEvent("timeout", gin.H{"message": "no outcome within session window"})
				return false
			}
			c.SSEvent("booking-result", event)
			return false
		case <-clientGone:
			return false
		}
	})
}

func (h *BookingHandler) bookingNum(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("bookingNum"), 10, 64)
	if err != nil {
		response.BadRequest(c, "bookingNum must be an integer")
		return 0, false
	}
	return id, true
}

func (h *BookingHandler) handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, "booking not found")
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	case domain.IsInvalidTransition(err):
		response.Error(c, http.StatusConflict, "INVALID_STATE", "booking is not cancellable", "")
	default:
		response.InternalError(c, err)
	}
}
