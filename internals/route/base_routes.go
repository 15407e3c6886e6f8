package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func BaseRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "disabled"
		serverStatus := "OK"
		httpStatus := fiber.StatusOK

		if d.DB != nil {
			dbStatus = "connected"
			sqlDB, err := d.DB.DB()
			if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
				dbStatus = "database connection error"
				serverStatus = "DOWN"
				httpStatus = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":         serverStatus,
			"database":       dbStatus,
			"server_time":    time.Now().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"environment":    d.Environment,
		})
	})
}
