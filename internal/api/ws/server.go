package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// Server is the push listener. It runs on its own net/http listener;
// gorilla/websocket needs the hijackable stdlib response writer.
type Server struct {
	hub        *Hub
	authm      *auth.AuthMiddleware
	registry   *notify.Registry
	centerDeps notify.Deps
	logger     *zap.Logger
	metrics    *observability.Metrics
	sendBuffer int
	upgrader   websocket.Upgrader
	httpSrv    *http.Server
}

// ServerDependencies bundles collaborators for the push listener.
type ServerDependencies struct {
	Hub        *Hub
	Auth       *auth.AuthMiddleware
	Registry   *notify.Registry
	CenterDeps notify.Deps
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	SendBuffer int
}

// NewServer constructs the push listener.
func NewServer(deps ServerDependencies) *Server {
	buffer := deps.SendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	return &Server{
		hub:        deps.Hub,
		authm:      deps.Auth,
		registry:   deps.Registry,
		centerDeps: deps.CenterDeps,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		sendBuffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Listen serves /ws on addr until the context is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("push listener started", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleWS authenticates the caller, upgrades the connection and binds a
// fresh notification center to the new session. The first frame sent is
// the session id; REST calls quote it in X-Session-ID so viewed-marks land
// on the right in-memory counters.
func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	principal, err := s.authm.ResolveToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	identity := notify.Identity{ID: principal.ID(), Admin: principal.Admin != nil}
	session := &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, s.sendBuffer),
		done:     make(chan struct{}),
		logger:   s.logger,
		metrics:  s.metrics,
	}

	deps := s.centerDeps
	deps.Notifier = sessionNotifier{session: session}
	center := notify.NewCenter(identity, deps)
	session.center = center

	if err := center.Start(ctx); err != nil {
		s.logger.Error("notification center start failed",
			zap.String("subject", identity.Key()), zap.Error(err))
		conn.Close()
		return
	}

	s.registry.Register(session.ID, center)
	s.hub.register <- session

	go session.writePump()
	session.enqueue(frame{Type: "session", Payload: map[string]any{
		"session_id": session.ID,
		"counts":     center.Counts(),
		"total":      center.TotalUnread(),
	}})

	session.readPump(ctx)

	// Teardown order matters: the center's subscriptions must be gone
	// before the session leaves the hub, so no change event can race a
	// dying session's send queue.
	s.registry.Unregister(session.ID)
	center.Close()
	s.hub.unregister <- session
}
