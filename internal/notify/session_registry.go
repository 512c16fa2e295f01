package notify

import (
	"context"
	"sync"
	"time"

	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/metrics"
)

// DefaultIdleTimeout is how long an outcome session may sit open without
// receiving an event before the registry closes it.
const DefaultIdleTimeout = 10 * time.Minute

type session struct {
	ch    chan *dto.OutcomeEvent
	timer *time.Timer
}

// SessionRegistry tracks at most one open outcome session per requester.
// A session is one-shot: the first delivered event closes it. Sessions
// that never receive an event are closed after the idle timeout.
type SessionRegistry struct {
	mu          sync.Mutex
	sessions    map[string]*session
	idleTimeout time.Duration
}

// NewSessionRegistry creates a registry with the given idle timeout.
// A non-positive timeout falls back to DefaultIdleTimeout.
func NewSessionRegistry(idleTimeout time.Duration) *SessionRegistry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &SessionRegistry{
		sessions:    make(map[string]*session),
		idleTimeout: idleTimeout,
	}
}

// Register opens a session for userID and returns the channel the outcome
// will arrive on, plus a release function the caller must invoke when it
// stops listening. Registering again for the same userID replaces the
// previous session, which is closed without an event.
func (r *SessionRegistry) Register(userID string) (<-chan *dto.OutcomeEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[userID]; ok {
		prev.timer.Stop()
		close(prev.ch)
		delete(r.sessions, userID)
		metrics.RecordSessionClosed(context.Background())
	}

	s := &session{ch: make(chan *dto.OutcomeEvent, 1)}
	s.timer = time.AfterFunc(r.idleTimeout, func() {
		r.expire(userID, s)
	})
	r.sessions[userID] = s
	metrics.RecordSessionOpened(context.Background())

	return s.ch, func() { r.release(userID, s) }
}

// Deliver pushes the outcome to userID's open session and closes it.
// Returns false when no session is open; the event is dropped.
func (r *SessionRegistry) Deliver(userID string, event *dto.OutcomeEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return false
	}

	s.timer.Stop()
	delete(r.sessions, userID)
	s.ch <- event // buffered, never blocks
	close(s.ch)
	metrics.RecordSessionClosed(context.Background())
	return true
}

// Len reports the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every open session without delivering an event.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, s := range r.sessions {
		s.timer.Stop()
		close(s.ch)
		delete(r.sessions, userID)
		metrics.RecordSessionClosed(context.Background())
	}
}

// expire removes a session whose idle timer fired. The identity check
// guards against closing a newer session registered under the same key.
func (r *SessionRegistry) expire(userID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[userID]; ok && cur == s {
		delete(r.sessions, userID)
		close(s.ch)
		metrics.RecordSessionClosed(context.Background())
	}
}

// release is the caller-side cleanup when the listener goes away before
// an event arrives. Delivered or expired sessions are already gone.
func (r *SessionRegistry) release(userID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[userID]; ok && cur == s {
		s.timer.Stop()
		delete(r.sessions, userID)
		close(s.ch)
		metrics.RecordSessionClosed(context.Background())
	}
}
