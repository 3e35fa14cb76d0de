// internal/notifications/session/manager.go
package session

import (
	"context"
	"errors"
	"sync"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
)

type entry struct {
	session *Session
	refs    int
}

// Manager keeps at most one session per user. Every attached socket holds a
// reference; the session stops with the last one.
type Manager struct {
	deps   Deps
	logger logger.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(deps Deps, log logger.Logger) *Manager {
	return &Manager{
		deps:     deps,
		logger:   log,
		sessions: make(map[string]*entry),
	}
}

// Attach returns the user's running session, starting one if needed.
func (m *Manager) Attach(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("attach: user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[userID]; ok {
		e.refs++
		return e.session, nil
	}

	s := newSession(userID, m.deps, m.logger)
	// the session outlives the attaching request
	if err := s.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	m.sessions[userID] = &entry{session: s, refs: 1}
	metrics.ActiveSessions.Inc()
	return s, nil
}

// Detach drops one reference and stops the session when none remain.
func (m *Manager) Detach(ctx context.Context, userID string) {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	e.session.Stop(ctx)
	metrics.ActiveSessions.Dec()
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every session regardless of references.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.session.Stop(ctx)
		metrics.ActiveSessions.Dec()
	}
}
