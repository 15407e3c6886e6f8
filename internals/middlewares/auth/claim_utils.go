package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "funnel_session"

var (
	errNoToken     = errors.New("unauthorized - no session token")
	errTokenFormat = errors.New("unauthorized - invalid token format")
)

// extractBearerToken reads the Authorization header, falling back to the session cookie.
func extractBearerToken(c *fiber.Ctx) (string, error) {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if auth == "" {
		if tok := strings.TrimSpace(c.Cookies(SessionCookie)); tok != "" {
			return strings.Trim(tok, "\"'"), nil
		}
		return "", errNoToken
	}

	// tolerate double spaces and any casing of "Bearer"
	fields := strings.Fields(auth)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errTokenFormat
	}
	tok := strings.Trim(strings.TrimSpace(fields[1]), "\"'")
	if tok == "" {
		return "", errNoToken
	}
	return tok, nil
}
