package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	paymentController "funnel_backend/internals/features/funnel/payments/controller"
	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	wizardController "funnel_backend/internals/features/funnel/wizard/controller"
	"funnel_backend/internals/middlewares/auth"
	routeDetails "funnel_backend/internals/route/details"
)

var startTime time.Time

type Deps struct {
	// DB is nil in memory mode.
	DB *gorm.DB

	Wizard   *wizardController.WizardController
	Attempts *paymentController.AttemptController
	Tokens   *sessionService.Tokens

	AdminAPIKey string
	Environment string
	Log         zerolog.Logger
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()

	BaseRoutes(app, d)

	// ===================== PUBLIC =====================
	d.Log.Info().Msg("setting up public group")
	public := app.Group("/api/public")
	routeDetails.FunnelPublicRoutes(public, d.Wizard, d.Tokens)

	// ===================== ADMIN (static key) =====================
	d.Log.Info().Msg("setting up admin group")
	admin := app.Group("/api/a", auth.AdminKey(d.AdminAPIKey))
	routeDetails.FunnelAdminRoutes(admin, d.Attempts)
}
