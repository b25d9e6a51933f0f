package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Admins         *handlers.AdminsHandler
	Tickets        *handlers.TicketsHandler
	AdminTickets   *handlers.AdminTicketsHandler
	Referrals      *handlers.ReferralsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Settings       *service.SettingsService
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/admins/login", cfg.Admins.Login)

	// End-user surface; gated while maintenance mode is on.
	user := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireUser(), MaintenanceGate(cfg.Settings))
	user.Post("/tickets", cfg.Tickets.Create)
	user.Get("/tickets", cfg.Tickets.List)
	user.Get("/tickets/:id", cfg.Tickets.Get)
	user.Post("/tickets/:id/messages", cfg.Tickets.PostMessage)
	user.Patch("/messages/:id", cfg.Tickets.EditMessage)
	user.Post("/tickets/:id/close", cfg.Tickets.Close)
	user.Post("/tickets/:id/reopen", cfg.Tickets.Reopen)

	// Notification surface is shared by both roles and stays reachable
	// during maintenance so badge state survives the gate.
	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("/counts", cfg.Notifications.Counts)
	notifications.Get("/tickets/:id/count", cfg.Notifications.TicketCount)
	notifications.Post("/tickets/:id/viewed", cfg.Notifications.MarkViewed)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/tickets", cfg.AdminTickets.List)
	admin.Post("/tickets/sweep-auto-close", cfg.Admins.SweepAutoClose)
	admin.Get("/tickets/:id", cfg.AdminTickets.Get)
	admin.Post("/tickets/:id/assign", cfg.AdminTickets.Assign)
	admin.Post("/tickets/:id/resolve", cfg.AdminTickets.Resolve)
	admin.Post("/tickets/:id/reopen", cfg.AdminTickets.Reopen)
	admin.Post("/tickets/:id/escalate", cfg.AdminTickets.Escalate)
	admin.Post("/tickets/:id/messages", cfg.AdminTickets.PostMessage)
	admin.Post("/tickets/:id/bookmark", cfg.AdminTickets.ToggleBookmark)
	admin.Get("/tickets/:id/can-refer", cfg.Referrals.CanRefer)
	admin.Post("/tickets/:id/referrals", cfg.Referrals.Create)
	admin.Get("/bookmarks", cfg.AdminTickets.ListBookmarks)
	admin.Get("/referrals/pending", cfg.Referrals.ListPending)
	admin.Post("/referrals/:id/respond", cfg.Referrals.Respond)
	admin.Post("/users/:id/suspension", cfg.Admins.SetSuspension)
	admin.Get("/settings", cfg.Admins.GetSettings)
	admin.Put("/settings", cfg.Admins.UpdateSettings)
}
