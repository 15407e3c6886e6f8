package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	helper "funnel_backend/internals/helpers"
)

// GlobalRateLimiter: every public endpoint
func GlobalRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
		},
	})
}

// LocalSMSSend marks whether the current request will send an SMS. A handler
// that only sometimes sends sets it to false to stay outside the SMS quota.
const LocalSMSSend = "sms_send"

// SMSRateLimiter is stricter: each hit sends a paid SMS. Share one instance
// between every route that can send so they draw from the same quota.
func SMSRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			sends, marked := c.Locals(LocalSMSSend).(bool)
			return marked && !sends
		},
		Max:        5,
		Expiration: 10 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, "Muitos envios de SMS. Aguarde alguns minutos.")
		},
	})
}

// SessionStartRateLimiter limits new sessions per IP.
func SessionStartRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: 5 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, "Muitas sessões iniciadas. Tente novamente mais tarde.")
		},
	})
}
