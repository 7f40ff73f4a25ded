package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// ErrorWithDetails adds extra top-level fields to the error envelope, used by
// the chunked upload flow to report granular progress alongside the message.
func ErrorWithDetails(c *fiber.Ctx, status int, message string, details fiber.Map) error {
	payload := fiber.Map{
		"success": false,
		"error":   message,
	}
	for key, value := range details {
		payload[key] = value
	}
	return c.Status(status).JSON(payload)
}
