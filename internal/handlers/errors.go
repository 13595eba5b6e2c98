package handlers

import (
	"log"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps apperr kinds to status codes exactly once, at the edge.
// Internal and external errors log their cause and hide it from the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperr.As(err); ok {
		message := appErr.Message
		if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindExternal {
			log.Printf("Error: %s %s: %v", c.Method(), c.Path(), err)
			message = "Internal server error"
			if appErr.Kind == apperr.KindExternal {
				message = "Upstream service unavailable"
			}
		}
		return c.Status(appErr.Status()).JSON(fiber.Map{
			"success": false,
			"message": message,
		})
	}

	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"message": fiberErr.Message,
		})
	}

	log.Printf("Error: %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Internal server error",
	})
}
