package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-escrow/middleware"
	"tournament-escrow/services"
)

func SetupRoleRoutes(app *fiber.App, accessService *services.AccessService) {
	app.Get("/roles/:role/admin", accessService.AdminOf)
	app.Get("/roles/:role/members/:account", accessService.HasRole)

	user := middleware.UserContextMiddleware()
	app.Post("/roles/:role/grant", user, accessService.GrantRole)
	app.Post("/roles/:role/revoke", user, accessService.RevokeRole)
	app.Post("/roles/:role/renounce", user, accessService.RenounceRole)
	app.Put("/roles/:role/admin", user, accessService.SetRoleAdmin)
}
