package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/middleware"
)

// MockBookingQueryService is a mock implementation of BookingQueryService
type MockBookingQueryService struct {
	SeatLoadFunc   func(ctx context.Context, storeID string, slotAt time.Time) (*dto.SeatLoadResponse, error)
	ListByUserFunc func(ctx context.Context, userID string) ([]*dto.BookingListItem, error)
	GetForUserFunc func(ctx context.Context, id int64, userID string) (*dto.BookingResponse, error)
	CancelFunc     func(ctx context.Context, id int64, userID string) error
}

func (m *MockBookingQueryService) SeatLoad(ctx context.Context, storeID string, slotAt time.Time) (*dto.SeatLoadResponse, error) {
	if m.SeatLoadFunc != nil {
		return m.SeatLoadFunc(ctx, storeID, slotAt)
	}
	return nil, nil
}

func (m *MockBookingQueryService) ListByUser(ctx context.Context, userID string) ([]*dto.BookingListItem, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockBookingQueryService) GetForUser(ctx context.Context, id int64, userID string) (*dto.BookingResponse, error) {
	if m.GetForUserFunc != nil {
		return m.GetForUserFunc(ctx, id, userID)
	}
	return nil, nil
}

func (m *MockBookingQueryService) Cancel(ctx context.Context, id int64, userID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, userID)
	}
	return nil
}

// MockRequestProducer is a mock implementation of RequestProducer
type MockRequestProducer struct {
	ProduceJSONFunc func(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
	produced        []*dto.BookingRequest
	keys            []string
}

func (m *MockRequestProducer) ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error {
	if req, ok := value.(*dto.BookingRequest); ok {
		m.produced = append(m.produced, req)
		m.keys = append(m.keys, key)
	}
	if m.ProduceJSONFunc != nil {
		return m.ProduceJSONFunc(ctx, topic, key, value, headers)
	}
	return nil
}

// MockOutcomeSessions is a mock implementation of OutcomeSessions
type MockOutcomeSessions struct {
	RegisterFunc func(userID string) (<-chan *dto.OutcomeEvent, func())
}

func (m *MockOutcomeSessions) Register(userID string) (<-chan *dto.OutcomeEvent, func()) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(userID)
	}
	ch := make(chan *dto.OutcomeEvent)
	close(ch)
	return ch, func() {}
}

func setupTestRouter(h *BookingHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	if userID != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserID, userID)
			c.Set(middleware.ContextUserName, "alice")
			c.Next()
		})
	}

	bookings := router.Group("/api/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/seats", h.GetSeatLoad)
		bookings.GET("/:bookingNum", h.GetBooking)
		bookings.DELETE("/:bookingNum", h.CancelBooking)
	}
	router.GET("/api/sse/booking-status", h.StreamOutcome)

	return router
}

// sseRecorder wraps httptest.ResponseRecorder with the http.CloseNotifier
// implementation that gin's Context.Stream requires.
type sseRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *sseRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	body := map[string]interface{}{
		"store_id":    "store-1",
		"slot_at":     "2026-03-01T18:00:30Z",
		"party_size":  2,
		"total_seats": 10,
	}

	t.Run("enqueues and returns 202", func(t *testing.T) {
		producer := &MockRequestProducer{}
		h := NewBookingHandler(&MockBookingQueryService{}, producer, &MockOutcomeSessions{}, "booking.requests")
		router := setupTestRouter(h, "user-1")

		payload, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(payload))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
		}
		if len(producer.produced) != 1 {
			t.Fatalf("produced %d messages, want 1", len(producer.produced))
		}

		msg := producer.produced[0]
		if producer.keys[0] != "user-1" {
			t.Errorf("partition key = %q, want user-1", producer.keys[0])
		}
		if msg.UserID != "user-1" || msg.UserName != "alice" {
			t.Errorf("identity not stamped from auth context: %+v", msg)
		}
		if msg.DedupToken == "" {
			t.Error("expected a dedup token on the enqueued request")
		}
		if msg.SlotAt.Second() != 0 {
			t.Errorf("slot not truncated: %v", msg.SlotAt)
		}
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		h := NewBookingHandler(&MockBookingQueryService{}, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
		router := setupTestRouter(h, "")

		payload, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(payload))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		h := NewBookingHandler(&MockBookingQueryService{}, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
		router := setupTestRouter(h, "user-1")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader([]byte(`{"party_size": 0}`)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("surfaces enqueue failure", func(t *testing.T) {
		producer := &MockRequestProducer{
			ProduceJSONFunc: func(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error {
				return context.DeadlineExceeded
			},
		}
		h := NewBookingHandler(&MockBookingQueryService{}, producer, &MockOutcomeSessions{}, "booking.requests")
		router := setupTestRouter(h, "user-1")

		payload, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(payload))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestBookingHandler_GetSeatLoad(t *testing.T) {
	svc := &MockBookingQueryService{
		SeatLoadFunc: func(ctx context.Context, storeID string, slotAt time.Time) (*dto.SeatLoadResponse, error) {
			return &dto.SeatLoadResponse{StoreID: storeID, SlotAt: slotAt.Truncate(time.Minute), ReservedSeats: 6}, nil
		},
	}
	h := NewBookingHandler(svc, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
	router := setupTestRouter(h, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/bookings/seats?store_id=store-1&slot_at=2026-03-01T18:00:00Z", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	t.Run("rejects malformed slot_at", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/bookings/seats?store_id=store-1&slot_at=tomorrow", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestBookingHandler_GetBooking(t *testing.T) {
	svc := &MockBookingQueryService{
		GetForUserFunc: func(ctx context.Context, id int64, userID string) (*dto.BookingResponse, error) {
			if id != 42 {
				return nil, domain.ErrBookingNotFound
			}
			return &dto.BookingResponse{BookingNum: id, UserID: userID, State: "reserved"}, nil
		},
	}
	h := NewBookingHandler(svc, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
	router := setupTestRouter(h, "user-1")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"found", "/api/bookings/42", http.StatusOK},
		{"not found", "/api/bookings/43", http.StatusNotFound},
		{"non-numeric id", "/api/bookings/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name       string
		cancelErr  error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"not found", domain.ErrBookingNotFound, http.StatusNotFound},
		{"already terminal", domain.ErrInvalidTransition, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingQueryService{
				CancelFunc: func(ctx context.Context, id int64, userID string) error {
					return tt.cancelErr
				},
			}
			h := NewBookingHandler(svc, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
			router := setupTestRouter(h, "user-1")

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/api/bookings/42", nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestBookingHandler_StreamOutcome(t *testing.T) {
	t.Run("streams the outcome event", func(t *testing.T) {
		released := false
		sessions := &MockOutcomeSessions{
			RegisterFunc: func(userID string) (<-chan *dto.OutcomeEvent, func()) {
				ch := make(chan *dto.OutcomeEvent, 1)
				ch <- dto.NewSuccessOutcome("Booking confirmed.", 42)
				close(ch)
				return ch, func() { released = true }
			},
		}
		h := NewBookingHandler(&MockBookingQueryService{}, &MockRequestProducer{}, sessions, "booking.requests")
		router := setupTestRouter(h, "user-1")

		w := newSSERecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sse/booking-status", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Errorf("Content-Type = %q, want text/event-stream", ct)
		}
		if !bytes.Contains(w.Body.Bytes(), []byte("booking-result")) {
			t.Errorf("body missing booking-result event: %s", w.Body.String())
		}
		if !released {
			t.Error("session was not released after streaming")
		}
	})

	t.Run("closed session reports a timeout event", func(t *testing.T) {
		sessions := &MockOutcomeSessions{
			RegisterFunc: func(userID string) (<-chan *dto.OutcomeEvent, func()) {
				ch := make(chan *dto.OutcomeEvent)
				close(ch)
				return ch, func() {}
			},
		}
		h := NewBookingHandler(&MockBookingQueryService{}, &MockRequestProducer{}, sessions, "booking.requests")
		router := setupTestRouter(h, "user-1")

		w := newSSERecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sse/booking-status", nil)
		router.ServeHTTP(w, req)

		if !bytes.Contains(w.Body.Bytes(), []byte("timeout")) {
			t.Errorf("body missing timeout event: %s", w.Body.String())
		}
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		h := NewBookingHandler(&MockBookingQueryService{}, &MockRequestProducer{}, &MockOutcomeSessions{}, "booking.requests")
		router := setupTestRouter(h, "")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sse/booking-status", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
