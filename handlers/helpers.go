package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fenilmodi00/ipogains-backend/shared"
)

// respondError maps a service error onto the response envelope. Internal
// causes are logged but never leaked to the client.
func respondError(c *fiber.Ctx, err error) error {
	apiErr := shared.AsAPIError(err)
	apiErr.LogError(c.Method() + " " + c.Path())
	return c.Status(apiErr.HTTPStatus()).JSON(fiber.Map{
		"success": false,
		"error":   apiErr.Message,
	})
}

func respondOK(c *fiber.Ctx, payload fiber.Map) error {
	payload["success"] = true
	return c.JSON(payload)
}

func respondCreated(c *fiber.Ctx, payload fiber.Map) error {
	payload["success"] = true
	return c.Status(fiber.StatusCreated).JSON(payload)
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, shared.NewValidationError("Invalid " + name + " parameter")
	}
	return id, nil
}

func badBody(c *fiber.Ctx) error {
	return respondError(c, shared.NewValidationError("Invalid request body"))
}
