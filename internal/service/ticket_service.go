package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets   repository.TicketRepository
	messages  repository.TicketMessageRepository
	bookmarks repository.BookmarkRepository
	now       func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	BookmarkRepo repository.BookmarkRepository
	Now          func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	DepartmentCode string
	Title          string
	Description    string
	Priority       domain.TicketPriority
	Attachments    domain.AttachmentList
}

// MessageInput describes a chat message payload.
type MessageInput struct {
	Body        string
	Attachments domain.AttachmentList
	AudioURL    *string
	ReplyToID   *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		messages:  deps.MessageRepo,
		bookmarks: deps.BookmarkRepo,
		now:       now,
	}
}

// CreateTicket files a new ticket for a user.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	ticket := &domain.Ticket{
		Number:         generateTicketNumber(),
		UserID:         user.ID,
		DepartmentCode: strings.TrimSpace(input.DepartmentCode),
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		Priority:       input.Priority,
		Attachments:    input.Attachments,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListUserTickets returns the user's own tickets.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{UserID: &userID, Limit: limit, Offset: offset}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListAdminTickets returns tickets in the admin's tracking scope, or all
// matching the filter when unscoped listing is requested.
func (s *TicketService) ListAdminTickets(ctx context.Context, adminID string, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if filter.UserID == nil && filter.AssigneeID == nil && len(filter.Statuses) == 0 {
		filter.OpenOrAssignedTo = &adminID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForUser fetches a ticket and its thread, enforcing ownership.
func (s *TicketService) GetTicketForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.UserID != userID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// GetTicketForAdmin fetches a ticket and its thread for admin triage.
func (s *TicketService) GetTicketForAdmin(ctx context.Context, admin *domain.Admin, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	if admin == nil {
		return nil, nil, apperrors.NewUnauthorized("admin required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// AddUserMessage appends a message authored by the ticket's owner.
func (s *TicketService) AddUserMessage(ctx context.Context, user *domain.User, ticketID string, input MessageInput) (*domain.TicketMessage, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != user.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewPreconditionFailed("ticket is closed", nil)
	}
	return s.appendMessage(ctx, ticket, user.ID, user.Name, false, input)
}

// AddAdminMessage appends a message authored by an admin. Admins may chat
// on tickets that are up for grabs or assigned to them.
func (s *TicketService) AddAdminMessage(ctx context.Context, admin *domain.Admin, ticketID string, input MessageInput) (*domain.TicketMessage, error) {
	if admin == nil {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !adminCanTouch(admin, ticket) {
		return nil, apperrors.NewForbidden("ticket is handled by another admin")
	}
	return s.appendMessage(ctx, ticket, admin.ID, admin.Name, true, input)
}

// EditMessage rewrites a message body in place, stamping the edit marker.
func (s *TicketService) EditMessage(ctx context.Context, authorID, messageID, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}
	msg, err := s.messages.Edit(ctx, messageID, authorID, body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("message", map[string]any{"message_id": messageID})
		}
		return nil, apperrors.MapError(err)
	}
	return msg, nil
}

// AssignTicket lets an admin claim an Open ticket, moving it to In Progress.
func (s *TicketService) AssignTicket(ctx context.Context, admin *domain.Admin, ticketID string) (*domain.Ticket, error) {
	if admin == nil {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidTransition(ticket.Status, domain.TicketStatusInProgress) {
		return nil, apperrors.NewPreconditionFailed("ticket cannot be assigned in current status",
			map[string]any{"status": ticket.Status})
	}
	ticket.Status = domain.TicketStatusInProgress
	ticket.AssignedAdminID = &admin.ID
	name := admin.Name
	ticket.AssignedAdminName = &name
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ResolveTicket marks an In Progress ticket Resolved with a resolution note.
func (s *TicketService) ResolveTicket(ctx context.Context, admin *domain.Admin, ticketID, note string) (*domain.Ticket, error) {
	if admin == nil {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedAdminID == nil || *ticket.AssignedAdminID != admin.ID {
		return nil, apperrors.NewForbidden("ticket is not assigned to you")
	}
	if !domain.ValidTransition(ticket.Status, domain.TicketStatusResolved) {
		return nil, apperrors.NewPreconditionFailed("ticket cannot be resolved in current status",
			map[string]any{"status": ticket.Status})
	}
	now := s.now()
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &now
	ticket.AdminResolvedAt = &now
	if note = strings.TrimSpace(note); note != "" {
		ticket.ResolutionNotes = append(ticket.ResolutionNotes, domain.ResolutionNote{
			Note:      note,
			AdminID:   admin.ID,
			AdminName: admin.Name,
			CreatedAt: now,
		})
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// CloseTicketAsUser lets the owner close a Resolved ticket.
func (s *TicketService) CloseTicketAsUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if !domain.ValidTransition(ticket.Status, domain.TicketStatusClosed) {
		return nil, apperrors.NewPreconditionFailed("ticket cannot be closed in current status",
			map[string]any{"status": ticket.Status})
	}
	now := s.now()
	ticket.Status = domain.TicketStatusClosed
	ticket.UserClosedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ReopenTicket re-enters the active cycle from Resolved or Closed. The
// ticket returns to In Progress when an admin still owns it, otherwise to
// Open; either way the reopen counter advances.
func (s *TicketService) ReopenTicket(ctx context.Context, actorUserID string, actorAdmin *domain.Admin, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if actorAdmin == nil && ticket.UserID != actorUserID {
		return nil, apperrors.NewForbidden("access denied")
	}
	next := domain.TicketStatusOpen
	if ticket.Assigned() {
		next = domain.TicketStatusInProgress
	}
	if !domain.IsReopen(ticket.Status, next) {
		return nil, apperrors.NewPreconditionFailed("ticket cannot be reopened in current status",
			map[string]any{"status": ticket.Status})
	}
	ticket.Status = next
	ticket.ReopenCount++
	ticket.ResolvedAt = nil
	ticket.AdminResolvedAt = nil
	ticket.UserClosedAt = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// EscalateTicket flags a non-terminal ticket urgent. The assigned admin's
// session raises a platform-level notification off the resulting change event.
func (s *TicketService) EscalateTicket(ctx context.Context, admin *domain.Admin, ticketID string) (*domain.Ticket, error) {
	if admin == nil {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsTerminal() {
		return nil, apperrors.NewPreconditionFailed("terminal tickets cannot be escalated",
			map[string]any{"status": ticket.Status})
	}
	if ticket.EscalatedAt != nil {
		return ticket, nil
	}
	now := s.now()
	ticket.EscalatedAt = &now
	ticket.Priority = domain.TicketPriorityUrgent
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ToggleBookmark flips an admin's bookmark on a ticket.
func (s *TicketService) ToggleBookmark(ctx context.Context, admin *domain.Admin, ticketID string) (bool, error) {
	if admin == nil {
		return false, apperrors.NewUnauthorized("admin required")
	}
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return false, err
	}
	bookmarked, err := s.bookmarks.Toggle(ctx, admin.ID, ticketID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return bookmarked, nil
}

// ListBookmarks returns the admin's bookmarked tickets.
func (s *TicketService) ListBookmarks(ctx context.Context, adminID string) ([]domain.TicketBookmark, error) {
	bookmarks, err := s.bookmarks.ListByAdmin(ctx, adminID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return bookmarks, nil
}

func (s *TicketService) appendMessage(ctx context.Context, ticket *domain.Ticket, authorID, authorName string, isAdmin bool, input MessageInput) (*domain.TicketMessage, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" && input.AudioURL == nil && len(input.Attachments) == 0 {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorID:    authorID,
		AuthorName:  authorName,
		IsAdmin:     isAdmin,
		Body:        body,
		Attachments: input.Attachments,
		AudioURL:    input.AudioURL,
		ReplyToID:   input.ReplyToID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	return msg, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func adminCanTouch(admin *domain.Admin, ticket *domain.Ticket) bool {
	if ticket.Status == domain.TicketStatusOpen {
		return true
	}
	return ticket.AssignedAdminID != nil && *ticket.AssignedAdminID == admin.ID
}

func generateTicketNumber() string {
	return "HD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
