package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

type ticketFixture struct {
	svc      *TicketService
	tickets  *memTicketRepo
	messages *memMessageRepo
	now      time.Time
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	fx := &ticketFixture{
		tickets:  newMemTicketRepo(),
		messages: newMemMessageRepo(),
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	fx.svc = NewTicketService(TicketDependencies{
		TicketRepo:   fx.tickets,
		MessageRepo:  fx.messages,
		BookmarkRepo: newMemBookmarkRepo(),
		Now:          func() time.Time { return fx.now },
	})
	return fx
}

func testUser(id string) *domain.User {
	return &domain.User{ID: id, Name: "User " + id, Email: id + "@users.test"}
}

func (fx *ticketFixture) createTicket(t *testing.T, owner *domain.User) *domain.Ticket {
	t.Helper()
	ticket, err := fx.svc.CreateTicket(context.Background(), owner, TicketCreateInput{
		DepartmentCode: "IT",
		Title:          "screen flickers",
		Description:    "intermittent",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestCreateTicketDefaults(t *testing.T) {
	fx := newTicketFixture(t)
	ticket := fx.createTicket(t, testUser("u1"))

	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", ticket.Status)
	}
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("priority = %s, want MEDIUM default", ticket.Priority)
	}
	if ticket.Number == "" || ticket.ID == "" {
		t.Fatalf("ticket missing number or id: %+v", ticket)
	}
}

func TestAssignResolveCloseCycle(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	fx := newTicketFixture(t)
	owner := testUser("u1")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	assigned, err := fx.svc.AssignTicket(ctx, &admin, ticket.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.TicketStatusInProgress || *assigned.AssignedAdminID != admin.ID {
		t.Fatalf("assign result = %+v", assigned)
	}

	// Double-assign is a precondition failure, not a reassignment.
	other := activeAdmin("a2", "Bob", "NET")
	if _, err := fx.svc.AssignTicket(ctx, &other, ticket.ID); !isPrecondition(err) {
		t.Fatalf("second assign err = %v, want precondition failure", err)
	}

	resolved, err := fx.svc.ResolveTicket(ctx, &admin, ticket.ID, "replaced cable")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.TicketStatusResolved || resolved.AdminResolvedAt == nil {
		t.Fatalf("resolve result = %+v", resolved)
	}
	if len(resolved.ResolutionNotes) != 1 || resolved.ResolutionNotes[0].Note != "replaced cable" {
		t.Fatalf("resolution notes = %+v", resolved.ResolutionNotes)
	}

	closed, err := fx.svc.CloseTicketAsUser(ctx, owner.ID, ticket.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed || closed.UserClosedAt == nil {
		t.Fatalf("close result = %+v", closed)
	}
}

func TestResolveRequiresAssignee(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	stranger := activeAdmin("a2", "Bob", "NET")
	fx := newTicketFixture(t)
	ticket := fx.createTicket(t, testUser("u1"))
	ctx := context.Background()

	if _, err := fx.svc.AssignTicket(ctx, &admin, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.svc.ResolveTicket(ctx, &stranger, ticket.ID, "not mine"); err == nil {
		t.Fatalf("resolve by non-assignee succeeded")
	}
}

func TestReopenFromResolvedAdvancesCounter(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	fx := newTicketFixture(t)
	owner := testUser("u1")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	if _, err := fx.svc.AssignTicket(ctx, &admin, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.svc.ResolveTicket(ctx, &admin, ticket.ID, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	reopened, err := fx.svc.ReopenTicket(ctx, owner.ID, nil, ticket.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.TicketStatusInProgress {
		t.Fatalf("reopened status = %s, want IN_PROGRESS while assigned", reopened.Status)
	}
	if reopened.ReopenCount != 1 {
		t.Fatalf("reopen count = %d, want 1", reopened.ReopenCount)
	}
	if reopened.ResolvedAt != nil || reopened.AdminResolvedAt != nil {
		t.Fatalf("reopen kept resolution timestamps: %+v", reopened)
	}

	// Reopening an active ticket is a precondition failure.
	if _, err := fx.svc.ReopenTicket(ctx, owner.ID, nil, ticket.ID); !isPrecondition(err) {
		t.Fatalf("reopen active ticket err = %v, want precondition failure", err)
	}
}

func TestReopenUnassignedGoesToOpen(t *testing.T) {
	_ = activeAdmin("a1", "Alice", "IT")
	fx := newTicketFixture(t)
	owner := testUser("u1")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	// Resolve without an assignee by mutating the store directly; models a
	// ticket resolved under an older workflow.
	stored, _ := fx.tickets.GetByID(ctx, ticket.ID)
	stored.Status = domain.TicketStatusResolved
	if err := fx.tickets.Update(ctx, stored); err != nil {
		t.Fatalf("seed resolved: %v", err)
	}

	reopened, err := fx.svc.ReopenTicket(ctx, owner.ID, nil, ticket.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.TicketStatusOpen {
		t.Fatalf("reopened status = %s, want OPEN when unassigned", reopened.Status)
	}
}

func TestEscalateIsIdempotentAndBlocksTerminal(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	fx := newTicketFixture(t)
	owner := testUser("u1")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	escalated, err := fx.svc.EscalateTicket(ctx, &admin, ticket.ID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.EscalatedAt == nil || escalated.Priority != domain.TicketPriorityUrgent {
		t.Fatalf("escalate result = %+v", escalated)
	}
	first := *escalated.EscalatedAt

	fx.now = fx.now.Add(time.Hour)
	again, err := fx.svc.EscalateTicket(ctx, &admin, ticket.ID)
	if err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	if !again.EscalatedAt.Equal(first) {
		t.Fatalf("re-escalate moved the timestamp")
	}

	if _, err := fx.svc.AssignTicket(ctx, &admin, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.svc.ResolveTicket(ctx, &admin, ticket.ID, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := fx.svc.CloseTicketAsUser(ctx, owner.ID, ticket.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	// fresh un-escalated terminal ticket cannot be escalated
	other := fx.createTicket(t, owner)
	stored, _ := fx.tickets.GetByID(ctx, other.ID)
	stored.Status = domain.TicketStatusClosed
	if err := fx.tickets.Update(ctx, stored); err != nil {
		t.Fatalf("seed closed: %v", err)
	}
	if _, err := fx.svc.EscalateTicket(ctx, &admin, other.ID); !isPrecondition(err) {
		t.Fatalf("escalate terminal err = %v, want precondition failure", err)
	}
}

func TestMessageAccessRules(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	peer := activeAdmin("a2", "Bob", "NET")
	fx := newTicketFixture(t)
	owner := testUser("u1")
	outsider := testUser("u2")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	if _, err := fx.svc.AddUserMessage(ctx, outsider, ticket.ID, MessageInput{Body: "hi"}); err == nil {
		t.Fatalf("outsider posted on foreign ticket")
	}
	if _, err := fx.svc.AddUserMessage(ctx, owner, ticket.ID, MessageInput{Body: "hello"}); err != nil {
		t.Fatalf("owner message: %v", err)
	}

	// Open ticket: any admin may chat.
	if _, err := fx.svc.AddAdminMessage(ctx, &peer, ticket.ID, MessageInput{Body: "looking"}); err != nil {
		t.Fatalf("admin message on open ticket: %v", err)
	}

	// Once claimed, only the assignee may.
	if _, err := fx.svc.AssignTicket(ctx, &admin, ticket.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.svc.AddAdminMessage(ctx, &peer, ticket.ID, MessageInput{Body: "still here"}); err == nil {
		t.Fatalf("peer posted on claimed ticket")
	}
}

func TestEditMessageOnlyByAuthor(t *testing.T) {
	fx := newTicketFixture(t)
	owner := testUser("u1")
	ticket := fx.createTicket(t, owner)
	ctx := context.Background()

	msg, err := fx.svc.AddUserMessage(ctx, owner, ticket.ID, MessageInput{Body: "typo"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	edited, err := fx.svc.EditMessage(ctx, owner.ID, msg.ID, "fixed")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Body != "fixed" || edited.EditedAt == nil {
		t.Fatalf("edit result = %+v", edited)
	}

	if _, err := fx.svc.EditMessage(ctx, "someone-else", msg.ID, "hijack"); err == nil {
		t.Fatalf("foreign edit succeeded")
	}
}

func TestBookmarkToggle(t *testing.T) {
	admin := activeAdmin("a1", "Alice", "IT")
	fx := newTicketFixture(t)
	ticket := fx.createTicket(t, testUser("u1"))
	ctx := context.Background()

	on, err := fx.svc.ToggleBookmark(ctx, &admin, ticket.ID)
	if err != nil || !on {
		t.Fatalf("first toggle = (%v, %v), want true", on, err)
	}
	off, err := fx.svc.ToggleBookmark(ctx, &admin, ticket.ID)
	if err != nil || off {
		t.Fatalf("second toggle = (%v, %v), want false", off, err)
	}
}
