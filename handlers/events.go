package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-escrow/metrics"
	"tournament-escrow/services"
)

func SetupEventRoutes(app *fiber.App, streamService *services.EventStreamService) {
	app.Get("/events", streamService.ListEvents)
	app.Get("/events/stream", streamService.StreamEvents)

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		metrics.WriteJSON(c)
		return nil
	})
}
