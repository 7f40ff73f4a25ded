package handlers

import (
	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, utils.Error(c, fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// parseOptionalParent reads an optional directory id from a query or body
// field; empty means root.
func parseOptionalParent(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// respondErr maps a service error onto the standard error envelope.
// Unexpected failures are logged with their full detail and answered with a
// generic message.
func respondErr(c *fiber.Ctx, err error) error {
	code := apperr.StatusCode(err)
	if code == fiber.StatusInternalServerError {
		logger.Error("request_failed", err, map[string]interface{}{
			"path":   c.Path(),
			"method": c.Method(),
		})
		return utils.Error(c, code, "internal server error")
	}
	return utils.Error(c, code, err.Error())
}
