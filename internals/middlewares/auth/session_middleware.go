package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	helper "funnel_backend/internals/helpers"
)

const (
	LocalSessionID = "session_id"
	LocalClaims    = "session_claims"
)

// SessionAuth requires a valid session token and stores the session id in Locals.
func SessionAuth(tokens *sessionService.Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := extractBearerToken(c)
		if err != nil {
			return helper.JsonError(c, fiber.StatusUnauthorized, err.Error())
		}
		id, claims, err := tokens.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusUnauthorized, "unauthorized - invalid or expired session")
		}
		c.Locals(LocalSessionID, id)
		c.Locals(LocalClaims, claims)
		return c.Next()
	}
}

// SessionID returns the id stored by SessionAuth.
func SessionID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(LocalSessionID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// AdminKey guards the ops endpoints with a static key sent as X-Admin-Key.
// An empty key closes the group.
func AdminKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := strings.TrimSpace(c.Get("X-Admin-Key"))
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return helper.JsonError(c, fiber.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}
