package helper

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// FromFiberError is the app-wide fiber.ErrorHandler. *fiber.Error keeps its
// code and message; anything else becomes a 500 without leaking the cause.
func FromFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return JsonError(c, fe.Code, fe.Message)
	}
	return JsonError(c, fiber.StatusInternalServerError, "")
}
