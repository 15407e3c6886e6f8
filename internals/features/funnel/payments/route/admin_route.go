package route

import (
	"github.com/gofiber/fiber/v2"

	"funnel_backend/internals/features/funnel/payments/controller"
)

func PaymentAttemptAdminRoutes(admin fiber.Router, ctrl *controller.AttemptController) {
	admin.Get("/payment-attempts", ctrl.ListAttempts)
}
