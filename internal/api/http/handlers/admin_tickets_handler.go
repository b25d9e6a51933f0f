package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

// AdminTicketsHandler exposes the triage surface for admins.
type AdminTicketsHandler struct {
	tickets   *service.TicketService
	referrals *service.ReferralService
}

// NewAdminTicketsHandler constructs handler.
func NewAdminTicketsHandler(tickets *service.TicketService, referrals *service.ReferralService) *AdminTicketsHandler {
	return &AdminTicketsHandler{tickets: tickets, referrals: referrals}
}

// List handles GET /admin/tickets. Without filters it returns the admin's
// tracking set: Open tickets plus tickets assigned to them.
func (h *AdminTicketsHandler) List(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	filter := parseTicketFilter(c)
	tickets, err := h.tickets.ListAdminTickets(c.UserContext(), principal.Admin.ID, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTickets(tickets)})
}

// Get handles GET /admin/tickets/:id. Opening the detail view of a ticket
// assigned to the caller opens their referral window for it.
func (h *AdminTicketsHandler) Get(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	ticket, msgs, err := h.tickets.GetTicketForAdmin(c.UserContext(), principal.Admin, c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.referrals.GrantReferralPermission(c.UserContext(), principal.Admin, ticket.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":    dto.FromTicket(ticket),
		"messages":  dto.FromMessages(msgs),
		"can_refer": h.referrals.CanRefer(principal.Admin.ID, ticket.ID),
	}})
}

// Assign handles POST /admin/tickets/:id/assign.
func (h *AdminTicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	ticket, err := h.tickets.AssignTicket(c.UserContext(), principal.Admin, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Resolve handles POST /admin/tickets/:id/resolve.
func (h *AdminTicketsHandler) Resolve(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	ticket, err := h.tickets.ResolveTicket(c.UserContext(), principal.Admin, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	// A resolved ticket invalidates any open referral window on it.
	h.referrals.RevokeReferralPermission(principal.Admin.ID, ticket.ID)
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Reopen handles POST /admin/tickets/:id/reopen.
func (h *AdminTicketsHandler) Reopen(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	ticket, err := h.tickets.ReopenTicket(c.UserContext(), "", principal.Admin, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Escalate handles POST /admin/tickets/:id/escalate.
func (h *AdminTicketsHandler) Escalate(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	ticket, err := h.tickets.EscalateTicket(c.UserContext(), principal.Admin, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// PostMessage handles POST /admin/tickets/:id/messages.
func (h *AdminTicketsHandler) PostMessage(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.tickets.AddAdminMessage(c.UserContext(), principal.Admin, c.Params("id"), service.MessageInput{
		Body:        req.Body,
		Attachments: req.Attachments,
		AudioURL:    req.AudioURL,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromMessage(msg)})
}

// ToggleBookmark handles POST /admin/tickets/:id/bookmark.
func (h *AdminTicketsHandler) ToggleBookmark(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	bookmarked, err := h.tickets.ToggleBookmark(c.UserContext(), principal.Admin, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"bookmarked": bookmarked}})
}

// ListBookmarks handles GET /admin/bookmarks.
func (h *AdminTicketsHandler) ListBookmarks(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	bookmarks, err := h.tickets.ListBookmarks(c.UserContext(), principal.Admin.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": bookmarks})
}

func parseTicketFilter(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	filter.Limit, filter.Offset = pagination(c)

	if raw := c.Query("statuses"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if raw := c.Query("priorities"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(p))))
		}
	}
	if q := c.Query("q"); q != "" {
		filter.SearchTerm = &q
	}
	if userID := c.Query("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	return filter
}
