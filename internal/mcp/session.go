package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionHeader is the HTTP header carrying the session id.
const SessionHeader = "mcp-session-id"

const defaultSessionTTL = 30 * time.Minute

// Session is one initialized MCP session.
type Session struct {
	ID         string
	TokenID    string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Sessions tracks live sessions. Entries expire after the idle TTL;
// touching a session on every request keeps it alive.
type Sessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

// NewSessions creates a session table. ttl <= 0 selects the 30m default.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

// Create opens a new session bound to the authenticated token.
func (s *Sessions) Create(tokenID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		TokenID:    tokenID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	s.sessions[sess.ID] = sess
	s.sweepLocked(now)
	return sess
}

// Touch validates a session id and refreshes its idle timer.
func (s *Sessions) Touch(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	if now.Sub(sess.LastSeenAt) > s.ttl {
		delete(s.sessions, id)
		return Session{}, false
	}
	sess.LastSeenAt = now
	s.sessions[id] = sess
	return sess, true
}

// Delete removes a session.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// sweepLocked drops idle sessions. Called opportunistically under the lock;
// the table is small enough that a full scan on create is fine.
func (s *Sessions) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeenAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
