// Package session keeps per-session traveler state between turns, so
// hosts get profile continuity without threading the profile through
// every request themselves.
package session

import (
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/planning"
)

const defaultMaxAge = 30 * time.Minute

// Manager remembers the traveler profile for each active session.
// Entries expire maxAge after their last turn. Expiry is lazy, applied
// on read; CleanupExpired is for hosts that want a periodic sweep.
// Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	maxAge  time.Duration
	logger  core.Logger
}

type entry struct {
	profile  planning.Profile
	lastTurn time.Time
}

// NewManager creates a session manager. maxAge <= 0 selects the
// 30 minute default.
func NewManager(maxAge time.Duration, logger core.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/session")
	}
	return &Manager{
		entries: make(map[string]*entry),
		maxAge:  maxAge,
		logger:  logger,
	}
}

// Profile returns the remembered profile for a session. Unknown and
// expired sessions report false; an expired entry is removed on the
// way out.
func (m *Manager) Profile(sessionID string) (planning.Profile, bool) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if !ok {
		return planning.Profile{}, false
	}

	if time.Since(e.lastTurn) > m.maxAge {
		m.mu.Lock()
		if cur, still := m.entries[sessionID]; still && cur == e {
			delete(m.entries, sessionID)
		}
		m.mu.Unlock()
		m.logger.Debug("Session expired", map[string]interface{}{
			"operation":  "session_profile",
			"session_id": sessionID,
		})
		return planning.Profile{}, false
	}

	// Merge into fresh defaults so callers never share our slices.
	return planning.NewProfile().Merge(e.profile), true
}

// Remember stores the session's current profile and restarts its
// expiry clock.
func (m *Manager) Remember(sessionID string, profile planning.Profile) {
	if sessionID == "" {
		return
	}
	stored := planning.NewProfile().Merge(profile)

	m.mu.Lock()
	m.entries[sessionID] = &entry{profile: stored, lastTurn: time.Now()}
	m.mu.Unlock()

	m.logger.Debug("Session profile remembered", map[string]interface{}{
		"operation":  "session_remember",
		"session_id": sessionID,
	})
}

// Forget drops a session immediately.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
}

// CleanupExpired removes every session idle past maxAge and returns
// how many were dropped.
func (m *Manager) CleanupExpired() int {
	cutoff := time.Now().Add(-m.maxAge)

	m.mu.Lock()
	removed := 0
	for id, e := range m.entries {
		if e.lastTurn.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("Expired sessions removed", map[string]interface{}{
			"operation": "session_cleanup",
			"removed":   removed,
		})
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
