package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/stream"
)

type fakeNotifier struct {
	mu        sync.Mutex
	toasts    []Toast
	platforms []PlatformNote
	badges    []BadgeUpdate
	platErr   error
}

func (f *fakeNotifier) Toast(t Toast) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, t)
}

func (f *fakeNotifier) Platform(n PlatformNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.platErr != nil {
		return f.platErr
	}
	f.platforms = append(f.platforms, n)
	return nil
}

func (f *fakeNotifier) Badge(b BadgeUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.badges = append(f.badges, b)
}

func (f *fakeNotifier) toastKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.toasts))
	for _, t := range f.toasts {
		kinds = append(kinds, t.Kind)
	}
	return kinds
}

type fakeWatermarks struct {
	mu       sync.Mutex
	rows     map[string]domain.NotificationWatermark
	touchErr error
	touches  []time.Time
	// onGet runs once at the next read, before the store lock is taken.
	// Tests use it to interleave events with an in-flight watermark fetch.
	onGet func()
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{rows: make(map[string]domain.NotificationWatermark)}
}

func (f *fakeWatermarks) Get(_ context.Context, userID, ticketID string) (*domain.NotificationWatermark, error) {
	if f.onGet != nil {
		hook := f.onGet
		f.onGet = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[userID+"|"+ticketID]
	if !ok {
		return nil, nil
	}
	copied := row
	return &copied, nil
}

func (f *fakeWatermarks) Touch(_ context.Context, userID, ticketID string, at time.Time) (*domain.NotificationWatermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return nil, f.touchErr
	}
	key := userID + "|" + ticketID
	row, ok := f.rows[key]
	if !ok {
		row = domain.NotificationWatermark{UserID: userID, TicketID: ticketID}
	}
	if at.After(row.LastMessageViewedAt) {
		row.LastMessageViewedAt = at
	}
	if at.After(row.LastStatusViewedAt) {
		row.LastStatusViewedAt = at
	}
	f.rows[key] = row
	f.touches = append(f.touches, at)
	copied := row
	return &copied, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs []domain.TicketMessage
}

func (f *fakeMessages) CountUnread(_ context.Context, ticketID, viewerID string, after time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.msgs {
		if m.TicketID == ticketID && m.AuthorID != viewerID && m.CreatedAt.After(after) {
			count++
		}
	}
	return count, nil
}

type fakeTickets struct {
	mu      sync.Mutex
	tickets []domain.Ticket
}

func (f *fakeTickets) ListTracked(_ context.Context, id Identity) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		switch {
		case !id.Admin && t.UserID == id.ID:
			out = append(out, t)
		case id.Admin && t.Status == domain.TicketStatusOpen:
			out = append(out, t)
		case id.Admin && t.AssignedAdminID != nil && *t.AssignedAdminID == id.ID:
			out = append(out, t)
		}
	}
	return out, nil
}

type centerFixture struct {
	center     *Center
	notifier   *fakeNotifier
	watermarks *fakeWatermarks
	messages   *fakeMessages
	tickets    *fakeTickets
	feed       stream.Broker
	now        time.Time
}

func newFixture(t *testing.T, id Identity) *centerFixture {
	t.Helper()
	fx := &centerFixture{
		notifier:   &fakeNotifier{},
		watermarks: newFakeWatermarks(),
		messages:   &fakeMessages{},
		tickets:    &fakeTickets{},
		feed:       stream.NewMemoryBroker(),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.center = NewCenter(id, Deps{
		Watermarks: fx.watermarks,
		Messages:   fx.messages,
		Tickets:    fx.tickets,
		Feed:       fx.feed,
		Notifier:   fx.notifier,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return fx.now },
	})
	return fx
}

func (fx *centerFixture) start(t *testing.T) {
	t.Helper()
	if err := fx.center.Start(context.Background()); err != nil {
		t.Fatalf("start center: %v", err)
	}
	t.Cleanup(fx.center.Close)
}

func (fx *centerFixture) publish(t *testing.T, table string, op stream.Op, oldRow, newRow any) {
	t.Helper()
	event, err := stream.NewEvent(table, op, oldRow, newRow)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	if err := fx.feed.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish event: %v", err)
	}
}

func userTicket(id, owner string, status domain.TicketStatus) domain.Ticket {
	return domain.Ticket{
		ID:     id,
		Number: "HD-" + id,
		UserID: owner,
		Status: status,
	}
}

func TestRebuildCountsMessagesWithoutWatermark(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	base := fx.now.Add(-time.Hour)
	fx.messages.msgs = []domain.TicketMessage{
		{TicketID: "t1", AuthorID: "a1", CreatedAt: base},
		{TicketID: "t1", AuthorID: "a1", CreatedAt: base.Add(time.Minute)},
		{TicketID: "t1", AuthorID: "u1", CreatedAt: base.Add(2 * time.Minute)},
		{TicketID: "other", AuthorID: "a1", CreatedAt: base},
	}
	fx.start(t)

	if got := fx.center.UnreadCountForTicket("t1"); got != 2 {
		t.Fatalf("unread count = %d, want 2 (own messages excluded)", got)
	}
	if got := fx.center.TotalUnread(); got != 2 {
		t.Fatalf("total unread = %d, want 2", got)
	}
}

func TestMarkTicketViewedIdempotentAndMonotonic(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	fx.messages.msgs = []domain.TicketMessage{
		{TicketID: "t1", AuthorID: "a1", CreatedAt: fx.now.Add(-time.Minute)},
	}
	fx.start(t)

	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("unread after first view = %d, want 0", got)
	}

	fx.now = fx.now.Add(time.Second)
	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err != nil {
		t.Fatalf("mark viewed again: %v", err)
	}
	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("unread after second view = %d, want 0", got)
	}

	if len(fx.watermarks.touches) != 2 {
		t.Fatalf("touches = %d, want 2", len(fx.watermarks.touches))
	}
	if fx.watermarks.touches[1].Before(fx.watermarks.touches[0]) {
		t.Fatalf("watermark regressed: %v then %v", fx.watermarks.touches[0], fx.watermarks.touches[1])
	}
}

func TestMessageFreshnessAroundWatermark(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	fx.start(t)

	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	viewedAt := fx.now

	// Stale event, at or before the watermark: must not count.
	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "a1", CreatedAt: viewedAt.Add(-time.Second),
	})
	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("stale message counted: unread = %d, want 0", got)
	}

	// Fresh event, strictly after the watermark: counts once.
	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m2", TicketID: "t1", AuthorID: "a1", AuthorName: "Agent", CreatedAt: viewedAt.Add(time.Second),
	})
	if got := fx.center.UnreadCountForTicket("t1"); got != 1 {
		t.Fatalf("fresh message unread = %d, want 1", got)
	}
	if kinds := fx.notifier.toastKinds(); len(kinds) != 1 || kinds[0] != "message" {
		t.Fatalf("toast kinds = %v, want [message]", kinds)
	}
}

func TestOwnMessagesNeverNotify(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	fx.start(t)

	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "u1", CreatedAt: fx.now.Add(time.Minute),
	})

	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("own message counted: unread = %d, want 0", got)
	}
	if len(fx.notifier.toastKinds()) != 0 {
		t.Fatalf("own message raised a toast")
	}
}

func TestAdminStopsTrackingWhenPeerClaims(t *testing.T) {
	fx := newFixture(t, Identity{ID: "adm1", Admin: true})
	open := userTicket("t1", "u1", domain.TicketStatusOpen)
	fx.tickets.tickets = []domain.Ticket{open}
	fx.start(t)

	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("initial unread = %d, want 0", got)
	}

	peer := "adm2"
	claimed := open
	claimed.Status = domain.TicketStatusInProgress
	claimed.AssignedAdminID = &peer
	claimed.UpdatedAt = fx.now
	fx.publish(t, stream.TableTickets, stream.OpUpdate, open, claimed)

	// Messages on a peer's ticket must not notify this admin.
	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "u1", CreatedAt: fx.now.Add(time.Minute),
	})

	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("peer ticket counted: unread = %d, want 0", got)
	}
	if len(fx.notifier.toastKinds()) != 0 {
		t.Fatalf("peer ticket raised a toast")
	}
}

func TestMessageRacingPeerClaimDoesNotNotify(t *testing.T) {
	fx := newFixture(t, Identity{ID: "adm1", Admin: true})
	open := userTicket("t1", "u1", domain.TicketStatusOpen)
	fx.tickets.tickets = []domain.Ticket{open}
	fx.start(t)

	// A peer claims the ticket while the message handler sits between its
	// tracking check and the counter bump, inside the watermark read.
	peer := "adm2"
	claimed := open
	claimed.Status = domain.TicketStatusInProgress
	claimed.AssignedAdminID = &peer
	claimed.UpdatedAt = fx.now
	fx.watermarks.onGet = func() {
		fx.publish(t, stream.TableTickets, stream.OpUpdate, open, claimed)
	}

	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "u1", AuthorName: "Owner", CreatedAt: fx.now.Add(time.Minute),
	})

	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("evicted ticket counted: unread = %d, want 0", got)
	}
	if got := fx.center.TotalUnread(); got != 0 {
		t.Fatalf("total unread = %d, want 0", got)
	}
	if len(fx.notifier.toastKinds()) != 0 {
		t.Fatalf("message on evicted ticket raised a toast")
	}
}

func TestAdminTracksAssignedTicketMessages(t *testing.T) {
	adminID := "adm1"
	fx := newFixture(t, Identity{ID: adminID, Admin: true})
	assigned := userTicket("t1", "u1", domain.TicketStatusInProgress)
	assigned.AssignedAdminID = &adminID
	fx.tickets.tickets = []domain.Ticket{assigned}
	fx.start(t)

	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "u1", AuthorName: "Owner", CreatedAt: fx.now.Add(time.Minute),
	})

	if got := fx.center.UnreadCountForTicket("t1"); got != 1 {
		t.Fatalf("assigned ticket unread = %d, want 1", got)
	}
}

func TestAssignmentNotifiesOwnerExactlyOnce(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	open := userTicket("t1", "u1", domain.TicketStatusOpen)
	fx.tickets.tickets = []domain.Ticket{open}
	fx.start(t)

	adminID := "adm1"
	adminName := "Alex"
	assigned := open
	assigned.Status = domain.TicketStatusInProgress
	assigned.AssignedAdminID = &adminID
	assigned.AssignedAdminName = &adminName
	assigned.UpdatedAt = fx.now.Add(time.Second)
	fx.publish(t, stream.TableTickets, stream.OpUpdate, open, assigned)

	if got := fx.center.UnreadCountForTicket("t1"); got != 1 {
		t.Fatalf("status unseen after assignment = %d, want 1", got)
	}
	if kinds := fx.notifier.toastKinds(); len(kinds) != 1 || kinds[0] != "assigned" {
		t.Fatalf("toast kinds = %v, want [assigned]", kinds)
	}

	// Viewing zeroes the counter.
	fx.now = fx.now.Add(time.Minute)
	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("unread after view = %d, want 0", got)
	}

	// A no-op update must not increment again.
	same := assigned
	same.UpdatedAt = fx.now.Add(time.Second)
	fx.publish(t, stream.TableTickets, stream.OpUpdate, assigned, same)
	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("no-op update incremented: unread = %d, want 0", got)
	}
}

func TestStatusTransitionBeforeWatermarkIgnored(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	open := userTicket("t1", "u1", domain.TicketStatusOpen)
	fx.tickets.tickets = []domain.Ticket{open}
	fx.start(t)

	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}

	resolved := open
	resolved.Status = domain.TicketStatusResolved
	resolved.UpdatedAt = fx.now.Add(-time.Minute)
	fx.publish(t, stream.TableTickets, stream.OpUpdate, open, resolved)

	if got := fx.center.UnreadCountForTicket("t1"); got != 0 {
		t.Fatalf("stale transition counted: unread = %d, want 0", got)
	}
}

func TestMarkViewedFailureLeavesCounters(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	fx.messages.msgs = []domain.TicketMessage{
		{TicketID: "t1", AuthorID: "a1", CreatedAt: fx.now.Add(-time.Minute)},
	}
	fx.start(t)

	fx.watermarks.touchErr = errors.New("store down")
	if err := fx.center.MarkTicketViewed(context.Background(), "t1"); err == nil {
		t.Fatalf("expected error from failed touch")
	}
	if got := fx.center.UnreadCountForTicket("t1"); got != 1 {
		t.Fatalf("failed view zeroed counter: unread = %d, want 1", got)
	}
}

func TestEscalationAlertsAssignedAdminOnly(t *testing.T) {
	adminID := "adm1"
	fx := newFixture(t, Identity{ID: adminID, Admin: true})
	assigned := userTicket("t1", "u1", domain.TicketStatusInProgress)
	assigned.AssignedAdminID = &adminID
	fx.tickets.tickets = []domain.Ticket{assigned}
	fx.start(t)

	escalatedAt := fx.now
	escalated := assigned
	escalated.EscalatedAt = &escalatedAt
	escalated.Priority = domain.TicketPriorityUrgent
	escalated.UpdatedAt = fx.now
	fx.publish(t, stream.TableTickets, stream.OpUpdate, assigned, escalated)

	fx.notifier.mu.Lock()
	defer fx.notifier.mu.Unlock()
	if len(fx.notifier.platforms) != 1 || !fx.notifier.platforms[0].RequireInteraction {
		t.Fatalf("platforms = %+v, want one require-interaction note", fx.notifier.platforms)
	}
}

func TestPlatformFailureDegradesToToast(t *testing.T) {
	fx := newFixture(t, Identity{ID: "u1"})
	fx.tickets.tickets = []domain.Ticket{userTicket("t1", "u1", domain.TicketStatusOpen)}
	fx.start(t)

	fx.notifier.platErr = errors.New("permission denied")
	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t1", AuthorID: "a1", CreatedAt: fx.now.Add(time.Minute),
	})

	if kinds := fx.notifier.toastKinds(); len(kinds) != 1 {
		t.Fatalf("toast kinds = %v, want one toast despite platform failure", kinds)
	}
	if got := fx.center.UnreadCountForTicket("t1"); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
}

func TestReferralInsertToastsReferredAdmin(t *testing.T) {
	fx := newFixture(t, Identity{ID: "adm2", Admin: true})
	fx.start(t)

	fx.publish(t, stream.TableReferrals, stream.OpInsert, nil, domain.TicketReferral{
		ID: "r1", TicketID: "t1", ReferringAdmin: "adm1", ReferredAdmin: "adm2",
		Status: domain.ReferralStatusPending,
	})
	// Referral addressed to someone else must be filtered out.
	fx.publish(t, stream.TableReferrals, stream.OpInsert, nil, domain.TicketReferral{
		ID: "r2", TicketID: "t2", ReferringAdmin: "adm1", ReferredAdmin: "adm3",
		Status: domain.ReferralStatusPending,
	})

	kinds := fx.notifier.toastKinds()
	if len(kinds) != 1 || kinds[0] != "referral" {
		t.Fatalf("toast kinds = %v, want [referral]", kinds)
	}
	fx.notifier.mu.Lock()
	defer fx.notifier.mu.Unlock()
	if len(fx.notifier.platforms) != 0 {
		t.Fatalf("referral raised a platform note; toast only expected")
	}
}

func TestNewTicketInsertStartsTracking(t *testing.T) {
	fx := newFixture(t, Identity{ID: "adm1", Admin: true})
	fx.start(t)

	fx.publish(t, stream.TableTickets, stream.OpInsert, nil, userTicket("t9", "u5", domain.TicketStatusOpen))
	fx.publish(t, stream.TableTicketMessages, stream.OpInsert, nil, domain.TicketMessage{
		ID: "m1", TicketID: "t9", AuthorID: "u5", CreatedAt: fx.now.Add(time.Minute),
	})

	if got := fx.center.UnreadCountForTicket("t9"); got != 1 {
		t.Fatalf("new ticket unread = %d, want 1", got)
	}
}
