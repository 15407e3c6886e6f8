package details

import (
	"github.com/gofiber/fiber/v2"

	paymentController "funnel_backend/internals/features/funnel/payments/controller"
	paymentRoute "funnel_backend/internals/features/funnel/payments/route"
	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	wizardController "funnel_backend/internals/features/funnel/wizard/controller"
	wizardRoute "funnel_backend/internals/features/funnel/wizard/route"
)

func FunnelPublicRoutes(public fiber.Router, ctrl *wizardController.WizardController, tokens *sessionService.Tokens) {
	wizardRoute.WizardPublicRoutes(public, ctrl, tokens)
}

// FunnelAdminRoutes is skipped when the ledger has no database behind it.
func FunnelAdminRoutes(admin fiber.Router, attempts *paymentController.AttemptController) {
	if attempts == nil {
		return
	}
	paymentRoute.PaymentAttemptAdminRoutes(admin, attempts)
}
