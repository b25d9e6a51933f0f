package notify

import "sync"

// Registry tracks live session centers by session id. Two tabs for the
// same identity are two sessions with independent counters; only the
// persisted watermark is shared between them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Center
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Center)}
}

// Register binds a center to a session id.
func (r *Registry) Register(sessionID string, center *Center) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = center
}

// Unregister removes and returns the session's center, if any.
func (r *Registry) Unregister(sessionID string) *Center {
	r.mu.Lock()
	defer r.mu.Unlock()
	center := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return center
}

// Get looks up a session's center.
func (r *Registry) Get(sessionID string) (*Center, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	center, ok := r.sessions[sessionID]
	return center, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
