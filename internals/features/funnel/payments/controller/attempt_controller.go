package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"funnel_backend/internals/features/funnel/payments/service"
	helper "funnel_backend/internals/helpers"
)

type AttemptController struct {
	Repo *service.AttemptRepository
	Log  zerolog.Logger
}

func NewAttemptController(repo *service.AttemptRepository, log zerolog.Logger) *AttemptController {
	return &AttemptController{Repo: repo, Log: log}
}

var attemptSorts = map[string]string{
	"created_at": "payment_attempt_created_at",
	"status":     "payment_attempt_status",
	"kind":       "payment_attempt_kind",
}

// =======================
// GET /payment-attempts?page=&per_page=&sort_by=&order=
// =======================
func (ctrl *AttemptController) ListAttempts(c *fiber.Ctx) error {
	p := helper.ParseFiber(c, "created_at", "desc", helper.AdminOpts)
	order, err := p.SafeOrder(attemptSorts, "created_at")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}

	rows, total, err := ctrl.Repo.List(c.UserContext(), p.Offset(), p.Limit(), order)
	if err != nil {
		ctrl.Log.Error().Err(err).Msg("list payment attempts")
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to list payment attempts")
	}

	return helper.JsonList(c, "ok", rows, helper.BuildPaginationFromPage(total, p.Page, p.PerPage, len(rows)))
}
