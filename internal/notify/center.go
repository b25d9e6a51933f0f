package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

// Identity is the session's authenticated principal.
type Identity struct {
	ID    string
	Admin bool
}

// Key returns a stable registry key for the identity.
func (id Identity) Key() string {
	if id.Admin {
		return "admin:" + id.ID
	}
	return "user:" + id.ID
}

// WatermarkStore is the slice of the watermark repository the center needs.
type WatermarkStore interface {
	Get(ctx context.Context, userID, ticketID string) (*domain.NotificationWatermark, error)
	Touch(ctx context.Context, userID, ticketID string, at time.Time) (*domain.NotificationWatermark, error)
}

// MessageStore counts historical unread messages for the initial rebuild.
type MessageStore interface {
	CountUnread(ctx context.Context, ticketID, viewerID string, after time.Time) (int, error)
}

// TicketSource lists the tickets an identity is entitled to track:
// end users track exactly their own tickets, admins track Open tickets
// plus tickets assigned to them.
type TicketSource interface {
	ListTracked(ctx context.Context, id Identity) ([]domain.Ticket, error)
}

// Deps bundles the center's collaborators.
type Deps struct {
	Watermarks WatermarkStore
	Messages   MessageStore
	Tickets    TicketSource
	Feed       stream.Broker
	Notifier   Notifier
	Logger     *zap.Logger
	Now        func() time.Time
}

// ticketState is the per-ticket session counter pair plus the row snapshot
// eligibility decisions are made from.
type ticketState struct {
	userID        string
	status        domain.TicketStatus
	assignedAdmin string
	msgUnseen     int
	statusUnseen  int
}

// Center is the session-scoped unread counter and notification dispatcher.
// One instance per active session, constructed at session start and closed
// at session end; counters are rebuilt from the store rather than trusted
// as durable truth. Never shared between sessions.
type Center struct {
	id         Identity
	watermarks WatermarkStore
	messages   MessageStore
	tickets    TicketSource
	feed       stream.Broker
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	tracked map[string]*ticketState
	wmCache map[string]*domain.NotificationWatermark
	wmKnown map[string]bool
	subs    []stream.Subscription
	ctx     context.Context
}

// NewCenter constructs a center for one session.
func NewCenter(id Identity, deps Deps) *Center {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Center{
		id:         id,
		watermarks: deps.Watermarks,
		messages:   deps.Messages,
		tickets:    deps.Tickets,
		feed:       deps.Feed,
		notifier:   notifier,
		logger:     deps.Logger,
		now:        now,
		tracked:    make(map[string]*ticketState),
		wmCache:    make(map[string]*domain.NotificationWatermark),
		wmKnown:    make(map[string]bool),
	}
}

// Identity returns the session principal the center serves.
func (c *Center) Identity() Identity {
	return c.id
}

// Start rebuilds counters from the store and attaches the change-stream
// subscriptions. Call Close when the session ends.
func (c *Center) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.Rebuild(ctx); err != nil {
		return err
	}

	msgSub, err := c.feed.Subscribe(stream.TableTicketMessages, stream.OpInsert, nil, c.handleMessageInsert)
	if err != nil {
		return err
	}
	c.addSub(msgSub)

	insSub, err := c.feed.Subscribe(stream.TableTickets, stream.OpInsert, nil, c.handleTicketInsert)
	if err != nil {
		return err
	}
	c.addSub(insSub)

	updSub, err := c.feed.Subscribe(stream.TableTickets, stream.OpUpdate, nil, c.handleTicketUpdate)
	if err != nil {
		return err
	}
	c.addSub(updSub)

	if c.id.Admin {
		refSub, err := c.feed.Subscribe(stream.TableReferrals, stream.OpInsert,
			stream.Filter{"referred_admin_id": c.id.ID}, c.handleReferralInsert)
		if err != nil {
			return err
		}
		c.addSub(refSub)
	}
	return nil
}

func (c *Center) addSub(sub stream.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Close tears down every subscription. Leaked subscriptions mean duplicate
// notifications, so sessions must always close their center.
func (c *Center) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Rebuild re-derives authoritative counts from the store. Called at session
// start and after change-stream gaps, since missed events are not replayed.
func (c *Center) Rebuild(ctx context.Context) error {
	tickets, err := c.tickets.ListTracked(ctx, c.id)
	if err != nil {
		return fmt.Errorf("list tracked tickets: %w", err)
	}

	fresh := make(map[string]*ticketState, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		state := &ticketState{
			userID: t.UserID,
			status: t.Status,
		}
		if t.AssignedAdminID != nil {
			state.assignedAdmin = *t.AssignedAdminID
		}
		since := c.watermarkMessageInstant(ctx, t.ID)
		count, err := c.messages.CountUnread(ctx, t.ID, c.id.ID, since)
		if err != nil {
			// Transient read failure: treated as no data yet, retried on
			// the next natural trigger.
			c.logger.Warn("unread count query failed", zap.String("ticket_id", t.ID), zap.Error(err))
			count = 0
		}
		state.msgUnseen = count
		fresh[t.ID] = state
	}

	c.mu.Lock()
	c.tracked = fresh
	c.mu.Unlock()
	return nil
}

// UnreadCountForTicket returns messages + status unseen for one ticket.
func (c *Center) UnreadCountForTicket(ticketID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.tracked[ticketID]
	if !ok {
		return 0
	}
	return state.msgUnseen + state.statusUnseen
}

// TotalUnread sums unseen counts across all tracked tickets.
func (c *Center) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLocked()
}

func (c *Center) totalLocked() int {
	total := 0
	for _, state := range c.tracked {
		total += state.msgUnseen + state.statusUnseen
	}
	return total
}

// Counts snapshots per-ticket unseen counts for the badge listing.
func (c *Center) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.tracked))
	for id, state := range c.tracked {
		if n := state.msgUnseen + state.statusUnseen; n > 0 {
			out[id] = n
		}
	}
	return out
}

// MarkTicketViewed persists a fresh watermark, then zeroes both counters
// for the ticket. The durable write is the guard against re-notification:
// when it fails the in-memory counts are left untouched so the session
// never believes a ticket is seen when it is not.
func (c *Center) MarkTicketViewed(ctx context.Context, ticketID string) error {
	wm, err := c.watermarks.Touch(ctx, c.id.ID, ticketID, c.now())
	if err != nil {
		c.logger.Warn("watermark touch failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return fmt.Errorf("touch watermark: %w", err)
	}

	c.mu.Lock()
	c.wmCache[ticketID] = wm
	c.wmKnown[ticketID] = true
	state, ok := c.tracked[ticketID]
	if ok {
		state.msgUnseen = 0
		state.statusUnseen = 0
	}
	total := c.totalLocked()
	c.mu.Unlock()

	c.notifier.Badge(BadgeUpdate{TicketID: ticketID, Messages: 0, Status: 0, Total: total})
	return nil
}

// --- change-stream handlers ---

func (c *Center) handleMessageInsert(event stream.ChangeEvent) {
	var msg domain.TicketMessage
	if err := event.DecodeNew(&msg); err != nil {
		c.logger.Warn("undecodable message event", zap.Error(err))
		return
	}
	if msg.AuthorID == c.id.ID {
		return
	}

	c.mu.Lock()
	_, tracked := c.tracked[msg.TicketID]
	c.mu.Unlock()
	if !tracked {
		return
	}

	// Watermark freshness: a missing watermark means everything is unseen.
	if !msg.CreatedAt.After(c.watermarkMessageInstant(c.ctx, msg.TicketID)) {
		return
	}

	c.mu.Lock()
	// The watermark read ran unlocked; a peer may have claimed the ticket
	// meanwhile and evicted it from the tracking set.
	state, tracked := c.tracked[msg.TicketID]
	if !tracked {
		c.mu.Unlock()
		return
	}
	state.msgUnseen++
	msgCount, statusCount := state.msgUnseen, state.statusUnseen
	total := c.totalLocked()
	c.mu.Unlock()

	c.notifier.Toast(Toast{
		TicketID: msg.TicketID,
		Kind:     "message",
		Message:  fmt.Sprintf("New message from %s", msg.AuthorName),
	})
	c.platform(PlatformNote{
		Title: "New ticket message",
		Body:  fmt.Sprintf("%s replied on a ticket", msg.AuthorName),
		Tag:   msg.TicketID,
	})
	c.notifier.Badge(BadgeUpdate{TicketID: msg.TicketID, Messages: msgCount, Status: statusCount, Total: total})
}

func (c *Center) handleTicketInsert(event stream.ChangeEvent) {
	var ticket domain.Ticket
	if err := event.DecodeNew(&ticket); err != nil {
		c.logger.Warn("undecodable ticket event", zap.Error(err))
		return
	}
	if !c.eligible(&ticket) {
		return
	}
	c.mu.Lock()
	if _, ok := c.tracked[ticket.ID]; !ok {
		c.tracked[ticket.ID] = newState(&ticket)
	}
	c.mu.Unlock()
}

func (c *Center) handleTicketUpdate(event stream.ChangeEvent) {
	var ticket domain.Ticket
	if err := event.DecodeNew(&ticket); err != nil {
		c.logger.Warn("undecodable ticket event", zap.Error(err))
		return
	}
	var old domain.Ticket
	hasOld, err := event.DecodeOld(&old)
	if err != nil {
		c.logger.Warn("undecodable ticket event", zap.Error(err))
		return
	}

	c.mu.Lock()
	state, tracked := c.tracked[ticket.ID]
	switch {
	case !tracked && c.eligible(&ticket):
		state = newState(&ticket)
		c.tracked[ticket.ID] = state
		tracked = true
	case tracked && !c.eligible(&ticket):
		// An admin stops tracking a ticket once it is claimed by a peer.
		delete(c.tracked, ticket.ID)
		tracked = false
	}
	if tracked {
		state.userID = ticket.UserID
		state.status = ticket.Status
		state.assignedAdmin = ""
		if ticket.AssignedAdminID != nil {
			state.assignedAdmin = *ticket.AssignedAdminID
		}
	}
	c.mu.Unlock()
	if !tracked || !hasOld {
		return
	}

	if c.id.Admin {
		c.notifyEscalation(&old, &ticket)
		return
	}
	if ticket.UserID != c.id.ID {
		return
	}
	c.notifyOwnerTransition(&old, &ticket)
}

// notifyOwnerTransition classifies a status change on the owner's ticket
// and, subject to the status watermark, bumps the status-unseen counter.
func (c *Center) notifyOwnerTransition(old, ticket *domain.Ticket) {
	kind, message := classifyTransition(old, ticket)
	if kind == "" {
		return
	}

	statusInstant := ticket.UpdatedAt
	if statusInstant.IsZero() {
		statusInstant = c.now()
	}
	if !statusInstant.After(c.watermarkStatusInstant(c.ctx, ticket.ID)) {
		return
	}

	c.mu.Lock()
	state, ok := c.tracked[ticket.ID]
	if !ok {
		c.mu.Unlock()
		return
	}
	state.statusUnseen++
	msgCount, statusCount := state.msgUnseen, state.statusUnseen
	total := c.totalLocked()
	c.mu.Unlock()

	c.notifier.Toast(Toast{TicketID: ticket.ID, Kind: kind, Message: message})
	c.platform(PlatformNote{
		Title: "Ticket update",
		Body:  message,
		Tag:   ticket.ID,
	})
	c.notifier.Badge(BadgeUpdate{TicketID: ticket.ID, Messages: msgCount, Status: statusCount, Total: total})
}

// notifyEscalation raises the platform-level alert reserved for escalation
// on the assigned admin's session.
func (c *Center) notifyEscalation(old, ticket *domain.Ticket) {
	if old.EscalatedAt != nil || ticket.EscalatedAt == nil {
		return
	}
	if ticket.AssignedAdminID == nil || *ticket.AssignedAdminID != c.id.ID {
		return
	}
	c.notifier.Toast(Toast{
		TicketID: ticket.ID,
		Kind:     "escalated",
		Message:  fmt.Sprintf("Ticket %s was escalated", ticket.Number),
	})
	c.platform(PlatformNote{
		Title:              "Ticket escalated",
		Body:               fmt.Sprintf("Ticket %s requires attention", ticket.Number),
		Tag:                ticket.ID,
		RequireInteraction: true,
	})
}

// handleReferralInsert toasts the referred admin. Toast only: platform
// notifications are reserved for escalation events.
func (c *Center) handleReferralInsert(event stream.ChangeEvent) {
	var referral domain.TicketReferral
	if err := event.DecodeNew(&referral); err != nil {
		c.logger.Warn("undecodable referral event", zap.Error(err))
		return
	}
	c.notifier.Toast(Toast{
		TicketID: referral.TicketID,
		Kind:     "referral",
		Message:  "A ticket was referred to you",
	})
}

// --- helpers ---

func classifyTransition(old, ticket *domain.Ticket) (kind, message string) {
	if old.Status != ticket.Status {
		switch ticket.Status {
		case domain.TicketStatusInProgress:
			return "assigned", fmt.Sprintf("Ticket %s is being worked on", ticket.Number)
		case domain.TicketStatusResolved:
			return "resolved", fmt.Sprintf("Ticket %s was resolved", ticket.Number)
		case domain.TicketStatusClosed:
			return "closed", fmt.Sprintf("Ticket %s was closed", ticket.Number)
		}
	}
	if !old.Assigned() && ticket.Assigned() {
		name := ""
		if ticket.AssignedAdminName != nil {
			name = *ticket.AssignedAdminName
		}
		return "support_assigned", fmt.Sprintf("%s is now handling ticket %s", name, ticket.Number)
	}
	return "", ""
}

func newState(ticket *domain.Ticket) *ticketState {
	state := &ticketState{userID: ticket.UserID, status: ticket.Status}
	if ticket.AssignedAdminID != nil {
		state.assignedAdmin = *ticket.AssignedAdminID
	}
	return state
}

// eligible implements the tracking rule: end users track exactly their own
// tickets; admins track Open tickets plus tickets assigned to them, and are
// never notified for tickets assigned to a different admin.
func (c *Center) eligible(ticket *domain.Ticket) bool {
	if !c.id.Admin {
		return ticket.UserID == c.id.ID
	}
	if ticket.Status == domain.TicketStatusOpen {
		return true
	}
	return ticket.AssignedAdminID != nil && *ticket.AssignedAdminID == c.id.ID
}

func (c *Center) platform(note PlatformNote) {
	if err := c.notifier.Platform(note); err != nil {
		// Platform channel unavailable; the toast already went out.
		c.logger.Debug("platform notification unavailable", zap.Error(err))
	}
}

func (c *Center) watermark(ctx context.Context, ticketID string) *domain.NotificationWatermark {
	c.mu.Lock()
	if c.wmKnown[ticketID] {
		wm := c.wmCache[ticketID]
		c.mu.Unlock()
		return wm
	}
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	wm, err := c.watermarks.Get(ctx, c.id.ID, ticketID)
	if err != nil {
		// Stale or unreadable watermark is never fatal: treat everything
		// as unseen and retry on the next event.
		c.logger.Warn("watermark read failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil
	}
	c.mu.Lock()
	c.wmCache[ticketID] = wm
	c.wmKnown[ticketID] = true
	c.mu.Unlock()
	return wm
}

func (c *Center) watermarkMessageInstant(ctx context.Context, ticketID string) time.Time {
	if wm := c.watermark(ctx, ticketID); wm != nil {
		return wm.LastMessageViewedAt
	}
	return time.Time{}
}

func (c *Center) watermarkStatusInstant(ctx context.Context, ticketID string) time.Time {
	if wm := c.watermark(ctx, ticketID); wm != nil {
		return wm.LastStatusViewedAt
	}
	return time.Time{}
}
