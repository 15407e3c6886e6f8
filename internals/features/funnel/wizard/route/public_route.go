package route

import (
	"github.com/gofiber/fiber/v2"

	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	"funnel_backend/internals/features/funnel/wizard/controller"
	"funnel_backend/internals/middlewares"
	"funnel_backend/internals/middlewares/auth"
)

func WizardPublicRoutes(api fiber.Router, ctrl *controller.WizardController, tokens *sessionService.Tokens) {
	funnel := api.Group("/funnel")

	funnel.Get("/plans", ctrl.ListPlans)
	funnel.Post("/sessions", middlewares.SessionStartRateLimiter(), ctrl.StartSession)

	// one quota for every route that can send a code
	sms := middlewares.SMSRateLimiter()

	session := funnel.Group("/session", auth.SessionAuth(tokens))
	session.Get("/", ctrl.GetSession)
	session.Post("/plan", ctrl.ChangePlan)
	session.Post("/advance", ctrl.MarkSMSSend, sms, ctrl.Advance)
	session.Post("/back", ctrl.Back)
	session.Post("/sms/resend", sms, ctrl.ResendSMS)
	session.Post("/payment/confirm", ctrl.ConfirmPayment)
	session.Post("/payment/retry", ctrl.RetryPayment)
}
