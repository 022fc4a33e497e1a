package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Role decides which part of the API a session may use.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Session represents an issued access token
type Session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Manager issues and checks in-memory session tokens. Sessions do not survive
// a restart.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a new session for subject.
func (m *Manager) Issue(subject string, role Role) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	s := Session{
		Token:     uuid.New().String(),
		Subject:   subject,
		Role:      role,
		ExpiresAt: m.now().Add(m.ttl),
	}
	m.sessions[s.Token] = s
	return s
}

// Validate returns the session behind token, or ErrInvalidToken if the token
// is unknown or expired.
func (m *Manager) Validate(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	if !s.ExpiresAt.After(m.now()) {
		delete(m.sessions, token)
		return Session{}, ErrInvalidToken
	}
	return s, nil
}

// Revoke ends a session. Unknown tokens are ignored.
func (m *Manager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// RevokeSubject ends every session of subject and returns how many there were.
func (m *Manager) RevokeSubject(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.Subject == subject {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

func (m *Manager) pruneLocked() {
	now := m.now()
	for token, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, token)
		}
	}
}
