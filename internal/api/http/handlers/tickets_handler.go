package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketsHandler exposes the end-user ticket surface.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Title == "" || req.Description == "" {
		return fiber.NewError(http.StatusBadRequest, "title and description required")
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), principal.User, service.TicketCreateInput{
		DepartmentCode: req.DepartmentCode,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	limit, offset := pagination(c)

	tickets, err := h.tickets.ListUserTickets(c.UserContext(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTickets(tickets)})
}

// Get handles GET /tickets/:id, returning the ticket and its thread.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	ticket, msgs, err := h.tickets.GetTicketForUser(c.UserContext(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":   dto.FromTicket(ticket),
		"messages": dto.FromMessages(msgs),
	}})
}

// PostMessage handles POST /tickets/:id/messages.
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.tickets.AddUserMessage(c.UserContext(), principal.User, c.Params("id"), service.MessageInput{
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

// EditMessage handles PATCH /messages/:id.
func (h *TicketsHandler) EditMessage(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	msg, err := h.tickets.EditMessage(c.UserContext(), principal.ID(), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromMessage(msg)})
}

// Close handles POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	ticket, err := h.tickets.CloseTicketAsUser(c.UserContext(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Reopen handles POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	ticket, err := h.tickets.ReopenTicket(c.UserContext(), principal.User.ID, nil, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func requireAdminPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Admin == nil {
		return nil, apperrors.NewForbidden("admin required")
	}
	return principal, nil
}
