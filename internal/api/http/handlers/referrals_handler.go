package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// ReferralsHandler exposes the admin hand-off surface.
type ReferralsHandler struct {
	referrals *service.ReferralService
}

// NewReferralsHandler constructs handler.
func NewReferralsHandler(referrals *service.ReferralService) *ReferralsHandler {
	return &ReferralsHandler{referrals: referrals}
}

// CanRefer handles GET /admin/tickets/:id/can-refer.
func (h *ReferralsHandler) CanRefer(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"can_refer": h.referrals.CanRefer(principal.Admin.ID, c.Params("id")),
	}})
}

// Create handles POST /admin/tickets/:id/referrals.
func (h *ReferralsHandler) Create(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.ToAdminID == "" {
		return fiber.NewError(http.StatusBadRequest, "to_admin_id required")
	}

	ref, err := h.referrals.CreateReferral(c.UserContext(), principal.Admin, c.Params("id"), req.ToAdminID, req.Message)
	if err != nil {
		return err
	}
	if ref == nil {
		// Unresolvable identity is a logged no-op, not a failure.
		return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": nil})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromReferral(ref)})
}

// ListPending handles GET /admin/referrals/pending.
func (h *ReferralsHandler) ListPending(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}

	refs, err := h.referrals.ListPendingForAdmin(c.UserContext(), principal.Admin.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromReferrals(refs)})
}

// Respond handles POST /admin/referrals/:id/respond.
func (h *ReferralsHandler) Respond(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RespondReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	ref, err := h.referrals.ResolveReferral(c.UserContext(), principal.Admin, c.Params("id"), req.Accepted)
	if err != nil {
		return err
	}
	if ref == nil {
		return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": dto.FromReferral(ref)})
}
