// middleware/user_context.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"tournament-escrow/account"
	"tournament-escrow/services"
)

// UserContextMiddleware resolves the caller identity forwarded by the
// Gateway. X-User-ID carries the caller's account address; it is checksummed
// and stored under services.CallerKey.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			log.Printf("[USER_CTX] X-User-ID required but missing: %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}
		caller, err := account.Parse(raw)
		if err != nil {
			log.Printf("[USER_CTX] rejected X-User-ID %q on %s: %v", raw, c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "X-User-ID is not a valid account address",
			})
		}

		c.Locals(services.CallerKey, caller)
		return c.Next()
	}
}
