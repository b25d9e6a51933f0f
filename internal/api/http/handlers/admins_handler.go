package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

// AdminsHandler exposes admin login plus operational endpoints: account
// suspension, central settings and the manual auto-close sweep.
type AdminsHandler struct {
	auth      *service.AuthService
	settings  *service.SettingsService
	autoclose *worker.AutoCloseWorker
}

// NewAdminsHandler constructs handler.
func NewAdminsHandler(authService *service.AuthService, settings *service.SettingsService, autoclose *worker.AutoCloseWorker) *AdminsHandler {
	return &AdminsHandler{auth: authService, settings: settings, autoclose: autoclose}
}

// Login handles POST /auth/admins/login.
func (h *AdminsHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	admin, res, err := h.auth.LoginAdmin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"admin": fiber.Map{
				"id":              admin.ID,
				"name":            admin.Name,
				"email":           admin.Email,
				"department_code": admin.DepartmentCode,
			},
			"auth": dto.AuthResponse{Token: res.Token, ExpiresAt: res.ExpiresAt},
		},
	})
}

// SetSuspension handles POST /admin/users/:id/suspension.
func (h *AdminsHandler) SetSuspension(c *fiber.Ctx) error {
	principal, err := requireAdminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SuspensionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	user, err := h.auth.SetUserSuspension(c.UserContext(), principal.Admin.ID, c.Params("id"), req.Suspend, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"user_id":      user.ID,
		"suspended":    user.Suspended,
		"suspended_at": user.SuspendedAt,
	}})
}

// GetSettings handles GET /admin/settings.
func (h *AdminsHandler) GetSettings(c *fiber.Ctx) error {
	if _, err := requireAdminPrincipal(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.settings.Current()})
}

// UpdateSettings handles PUT /admin/settings.
func (h *AdminsHandler) UpdateSettings(c *fiber.Ctx) error {
	if _, err := requireAdminPrincipal(c); err != nil {
		return err
	}
	var req dto.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	updated, err := h.settings.Update(c.UserContext(), &domain.AppSettings{
		ID:                      "default",
		AutoCloseThresholdHours: req.AutoCloseThresholdHours,
		MaintenanceMode:         req.MaintenanceMode,
		MaintenanceMessage:      req.MaintenanceMessage,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

// SweepAutoClose handles POST /admin/tickets/sweep-auto-close. The sweep
// is idempotent; callers may fire it freely on top of the periodic worker.
func (h *AdminsHandler) SweepAutoClose(c *fiber.Ctx) error {
	if _, err := requireAdminPrincipal(c); err != nil {
		return err
	}
	closed, err := h.autoclose.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"closed": closed}})
}
