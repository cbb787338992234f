package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PlugStatic answers browser and crawler probes (/.well-known/..., favicon)
// before they reach the static handler and show up as 404 noise.
func PlugStatic(staticPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		if strings.HasPrefix(path, "/.well-known/") ||
			strings.HasPrefix(path, staticPrefix+"/.well-known/") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status": "ignored dynamic-static",
			})
		}
		if path == "/favicon.ico" {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
