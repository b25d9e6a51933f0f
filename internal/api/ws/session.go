package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
)

var wsjson = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Session is one live push connection. It owns a notification center for
// the lifetime of the socket; counters die with it, the watermark does not.
// The send channel is never closed: teardown is signalled through done, so
// a change event racing disconnect drops its frame instead of panicking.
type Session struct {
	ID       string
	Identity notify.Identity

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	center    *notify.Center
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// shutdown stops the write pump and mutes enqueue. Idempotent.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

// frame is the envelope for both directions on the socket.
type frame struct {
	Type     string `json:"type"`
	TicketID string `json:"ticket_id,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// sessionNotifier feeds center output into the session's send queue. It
// never blocks: the center fires it while holding its state lock, so a
// slow socket drops frames instead of stalling dispatch. Dropped frames
// are recovered by the client's next reconcile.
type sessionNotifier struct {
	session *Session
}

func (n sessionNotifier) Toast(t notify.Toast) {
	n.session.enqueue(frame{Type: "toast", Payload: t})
	n.session.metrics.RecordNotification("toast")
}

func (n sessionNotifier) Platform(p notify.PlatformNote) error {
	n.session.enqueue(frame{Type: "platform", Payload: p})
	n.session.metrics.RecordNotification("platform")
	return nil
}

func (n sessionNotifier) Badge(b notify.BadgeUpdate) {
	n.session.enqueue(frame{Type: "badge", Payload: b})
}

func (s *Session) enqueue(f frame) {
	select {
	case <-s.done:
		return
	default:
	}
	data, err := wsjson.Marshal(f)
	if err != nil {
		s.logger.Warn("push frame marshal failed", zap.Error(err))
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.metrics.RecordStreamDrop()
		s.logger.Warn("push frame dropped, send queue full",
			zap.String("session_id", s.ID), zap.String("type", f.Type))
	}
}

// writePump drains the send queue onto the socket.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("push write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the socket closes. Two frames are
// understood: "viewed" marks a ticket seen, "reconcile" rebuilds counters
// after the client suspects a stream gap.
func (s *Session) readPump(ctx context.Context) {
	defer s.conn.Close()
	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("push read failed", zap.Error(err))
			}
			return
		}
		var f frame
		if err := wsjson.Unmarshal(data, &f); err != nil {
			s.logger.Warn("inbound push frame undecodable", zap.Error(err))
			continue
		}
		s.handleInbound(ctx, f)
	}
}

func (s *Session) handleInbound(ctx context.Context, f frame) {
	switch f.Type {
	case "viewed":
		if f.TicketID == "" {
			return
		}
		if err := s.center.MarkTicketViewed(ctx, f.TicketID); err != nil {
			s.enqueue(frame{Type: "error", TicketID: f.TicketID, Payload: "mark viewed failed, retry"})
		}
	case "reconcile":
		if err := s.center.Rebuild(ctx); err != nil {
			s.logger.Warn("session reconcile failed",
				zap.String("session_id", s.ID), zap.Error(err))
			return
		}
		s.enqueue(frame{Type: "counts", Payload: s.center.Counts()})
	default:
		s.logger.Debug("unknown inbound frame type", zap.String("type", f.Type))
	}
}
