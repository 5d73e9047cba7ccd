// Package registry is the process-wide map of active sessions. A session ID
// appears here if and only if the session is in progress and has not reached a
// terminal status; membership is the sole gate every handler checks before
// mutating state.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// Registry maps session IDs to live in-memory sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

// Put inserts or replaces the session under its ID.
func (r *Registry) Put(sess *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
}

// Get returns the active session for id, or false if the session is unknown
// or already finalized.
func (r *Registry) Get(id uuid.UUID) (*models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove evicts the session and reports whether it was present. The boolean
// is the finalize-once gate: only the caller that actually removed the entry
// may commit a terminal outcome.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Contains reports whether the session is still active.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
