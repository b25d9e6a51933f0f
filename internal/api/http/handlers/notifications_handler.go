package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const sessionHeader = "X-Session-ID"

// NotificationsHandler exposes unread counts and the viewed-mark. Counts
// live in the caller's push session; REST calls carry the session id the
// push channel handed out. A viewed-mark without a live session still
// persists the watermark, which is the durable guard, it just has no
// in-memory counters to zero.
type NotificationsHandler struct {
	registry   *notify.Registry
	watermarks repository.WatermarkRepository
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(registry *notify.Registry, watermarks repository.WatermarkRepository) *NotificationsHandler {
	return &NotificationsHandler{registry: registry, watermarks: watermarks}
}

// Counts handles GET /notifications/counts.
func (h *NotificationsHandler) Counts(c *fiber.Ctx) error {
	center, ok := h.sessionCenter(c)
	if !ok {
		return c.JSON(fiber.Map{"data": fiber.Map{
			"counts": map[string]int{},
			"total":  0,
			"live":   false,
		}})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"counts": center.Counts(),
		"total":  center.TotalUnread(),
		"live":   true,
	}})
}

// TicketCount handles GET /notifications/tickets/:id/count.
func (h *NotificationsHandler) TicketCount(c *fiber.Ctx) error {
	count := 0
	if center, ok := h.sessionCenter(c); ok {
		count = center.UnreadCountForTicket(c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// MarkViewed handles POST /notifications/tickets/:id/viewed.
func (h *NotificationsHandler) MarkViewed(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	ticketID := c.Params("id")

	if center, ok := h.sessionCenter(c); ok {
		if err := center.MarkTicketViewed(c.UserContext(), ticketID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"viewed": true}})
	}

	if _, err := h.watermarks.Touch(c.UserContext(), principal.ID(), ticketID, time.Now()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"viewed": true}})
}

func (h *NotificationsHandler) sessionCenter(c *fiber.Ctx) (*notify.Center, bool) {
	sessionID := c.Get(sessionHeader)
	if sessionID == "" {
		return nil, false
	}
	center, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, false
	}
	// A session id belongs to exactly one identity; reject borrowed ids.
	principal, _ := auth.PrincipalFromContext(c)
	if principal == nil || center.Identity().ID != principal.ID() {
		return nil, false
	}
	return center, true
}
