package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of active push sessions. Register/unregister run
// through channels so session lifecycle is serialized in one goroutine.
type Hub struct {
	register   chan *Session
	unregister chan *Session

	mu       sync.RWMutex
	sessions map[*Session]bool

	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Session),
		unregister: make(chan *Session),
		sessions:   make(map[*Session]bool),
		logger:     logger,
	}
}

// Run owns session membership until the context is done.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session] = true
			h.mu.Unlock()
			h.logger.Info("push session opened",
				zap.String("session_id", session.ID),
				zap.String("subject", session.Identity.Key()))
		case session := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[session]; ok {
				delete(h.sessions, session)
				session.shutdown()
			}
			h.mu.Unlock()
			h.logger.Info("push session closed", zap.String("session_id", session.ID))
		}
	}
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for session := range h.sessions {
		session.shutdown()
		delete(h.sessions, session)
	}
}
