package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/tract-overlays/internal/controller"
)

// ErrSessionLimit is returned when the registry is full.
var ErrSessionLimit = errors.New("api: session limit reached")

// Session is one mounted map view.
type Session struct {
	ID        string
	CreatedAt time.Time
	View      *controller.Controller
}

// Sessions is a bounded registry of live sessions.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
	max  int
}

// NewSessions creates a registry holding at most maxSessions sessions.
func NewSessions(maxSessions int) *Sessions {
	return &Sessions{byID: make(map[string]*Session), max: maxSessions}
}

// Create registers a session for the view built by newView. The view is not
// mounted; the caller mounts it.
func (s *Sessions) Create(newView func(id string) *controller.Controller) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.byID) >= s.max {
		return nil, ErrSessionLimit
	}

	id := uuid.NewString()
	sess := &Session{ID: id, CreatedAt: time.Now().UTC(), View: newView(id)}
	s.byID[id] = sess
	return sess, nil
}

// Get looks a session up by id.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// Remove unregisters a session and unmounts its view.
func (s *Sessions) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()

	if ok {
		sess.View.Unmount()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close unmounts and drops every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.byID
	s.byID = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.View.Unmount()
	}
}
