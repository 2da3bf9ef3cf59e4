// Package coach implements the session orchestrator: per-turn conversation
// state, the daily progress rule, and the progress views derived from the
// ledger.
package coach

import (
	"sync"

	"github.com/ashureev/coach60/internal/domain"
)

// Session is the explicit in-memory working copy of one user's
// conversation. It is loaded from the store at most once per session
// lifetime; subsequent turns reuse and extend the working copy
// (single-session, single-writer assumption).
type Session struct {
	UserHash string

	mu       sync.Mutex
	messages []domain.Message
	loaded   bool
}

// NewSession creates an unloaded session for a user identity.
func NewSession(userHash string) *Session {
	return &Session{UserHash: userHash}
}

// Snapshot returns a copy of the current working message sequence.
func (s *Session) Snapshot() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loaded reports whether the session has read its baseline from the store.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Manager hands out one session per user identity. The per-session mutex
// serializes turns for the same user, so two tabs sharing a credential
// cannot interleave a read-modify-write on the conversation.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a user identity, creating it on first
// use.
func (m *Manager) GetOrCreate(userHash string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userHash]; ok {
		return sess
	}
	sess := NewSession(userHash)
	m.sessions[userHash] = sess
	return sess
}
