package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"funnel_backend/internals/clients/crm"
	paymentService "funnel_backend/internals/features/funnel/payments/service"
	planModel "funnel_backend/internals/features/funnel/plans/model"
	planService "funnel_backend/internals/features/funnel/plans/service"
	sessionModel "funnel_backend/internals/features/funnel/sessions/model"
	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	stepModel "funnel_backend/internals/features/funnel/steps/model"
	stepService "funnel_backend/internals/features/funnel/steps/service"
	verificationService "funnel_backend/internals/features/funnel/verification/service"
	"funnel_backend/internals/features/funnel/wizard/dto"
	"funnel_backend/internals/features/funnel/wizard/service"
	helper "funnel_backend/internals/helpers"
	"funnel_backend/internals/middlewares"
	"funnel_backend/internals/middlewares/auth"
)

type WizardController struct {
	Wizard *service.Wizard
	Tokens *sessionService.Tokens

	// LandingURL receives visitors that arrive without a plan.
	LandingURL   string
	SecureCookie bool
	Log          zerolog.Logger
}

func NewWizardController(w *service.Wizard, tokens *sessionService.Tokens, landingURL string, secureCookie bool, log zerolog.Logger) *WizardController {
	return &WizardController{
		Wizard:       w,
		Tokens:       tokens,
		LandingURL:   landingURL,
		SecureCookie: secureCookie,
		Log:          log.With().Str("component", "wizard_controller").Logger(),
	}
}

// =======================
// GET /plans
// =======================
func (ctrl *WizardController) ListPlans(c *fiber.Ctx) error {
	return helper.JsonOK(c, "ok", ctrl.Wizard.Plans())
}

// =======================
// POST /sessions
// =======================
func (ctrl *WizardController) StartSession(c *fiber.Ctx) error {
	var q dto.StartQuery
	if err := c.QueryParser(&q); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Parâmetros inválidos")
	}
	amount, err := planService.ParseAmount(q.Amount)
	if err != nil {
		return helper.JsonValidationError(c, "", map[string][]string{"amount": {"Valor inválido"}})
	}

	s, err := ctrl.Wizard.Start(c.UserContext(), service.StartInput{
		Selection: planModel.Selection{Plan: q.Plan, Periodicity: q.Periodicity, Amount: amount},
		Step:      q.Step,
		DevAccess: q.DevAccess,
		Origin:    q.Origin,
	})
	if errors.Is(err, planService.ErrNoPlan) {
		return c.Redirect(ctrl.LandingURL, fiber.StatusSeeOther)
	}
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusCreated)
}

// =======================
// GET /session
// =======================
func (ctrl *WizardController) GetSession(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	s, err := ctrl.Wizard.View(c.UserContext(), id)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/advance
// =======================
func (ctrl *WizardController) Advance(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	var body dto.AdvanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
	}
	if err := stepService.Validator().Struct(&body); err != nil {
		return helper.JsonValidationError(c, "", stepService.TranslateAll(err))
	}

	s, err := ctrl.Wizard.Advance(c.UserContext(), id, body.Value)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/back
// =======================
func (ctrl *WizardController) Back(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	s, err := ctrl.Wizard.Back(c.UserContext(), id)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/plan?plan=&periodicity=&amount=
// =======================
func (ctrl *WizardController) ChangePlan(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	var q dto.PlanQuery
	if err := c.QueryParser(&q); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Parâmetros inválidos")
	}
	amount, err := planService.ParseAmount(q.Amount)
	if err != nil {
		return helper.JsonValidationError(c, "", map[string][]string{"amount": {"Valor inválido"}})
	}

	s, err := ctrl.Wizard.ChangePlan(c.UserContext(), id, planModel.Selection{Plan: q.Plan, Periodicity: q.Periodicity, Amount: amount})
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/sms/resend
// =======================
func (ctrl *WizardController) ResendSMS(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	s, err := ctrl.Wizard.ResendSMS(c.UserContext(), id)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/payment/confirm
// =======================
func (ctrl *WizardController) ConfirmPayment(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	var body dto.ConfirmPaymentRequest
	if err := c.BodyParser(&body); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Corpo da requisição inválido")
	}
	if err := stepService.Validator().Struct(&body); err != nil {
		return helper.JsonValidationError(c, "", stepService.TranslateAll(err))
	}

	s, err := ctrl.Wizard.ConfirmPayment(c.UserContext(), id, body.PaymentMethodID)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

// =======================
// POST /session/payment/retry
// =======================
func (ctrl *WizardController) RetryPayment(c *fiber.Ctx) error {
	id, ok := auth.SessionID(c)
	if !ok {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Sessão ausente")
	}
	s, err := ctrl.Wizard.RetryPayment(c.UserContext(), id)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ctrl.respond(c, s, fiber.StatusOK)
}

/* ===================== Helpers ===================== */

// MarkSMSSend runs before the SMS limiter on /advance: only an advance from
// the phone step sends a code, so only that one counts against the quota.
func (ctrl *WizardController) MarkSMSSend(c *fiber.Ctx) error {
	sends := false
	if id, ok := auth.SessionID(c); ok {
		if s, err := ctrl.Wizard.View(c.UserContext(), id); err == nil {
			sends = s.Step == stepModel.StepPhone
		}
	}
	c.Locals(middlewares.LocalSMSSend, sends)
	return c.Next()
}

// respond re-issues the token so its flags follow the saved state.
func (ctrl *WizardController) respond(c *fiber.Ctx, s *sessionModel.State, status int) error {
	token, exp, err := ctrl.Tokens.Issue(s)
	if err != nil {
		ctrl.Log.Error().Err(err).Str("session_id", s.ID.String()).Msg("issue session token")
		return helper.JsonError(c, fiber.StatusInternalServerError, "")
	}
	c.Cookie(&fiber.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Expires:  exp,
		HTTPOnly: true,
		Secure:   ctrl.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	body := dto.SessionResponse{Token: token, ExpiresAt: exp.UTC().Truncate(time.Second), Session: dto.ToSessionView(s)}
	if status == fiber.StatusCreated {
		return helper.JsonCreated(c, "sessão iniciada", body)
	}
	return helper.JsonOK(c, "ok", body)
}

// fail maps domain errors to HTTP answers. Field problems keep the step and
// come back as 422 with the field name.
func (ctrl *WizardController) fail(c *fiber.Ctx, err error) error {
	if fe, ok := stepService.AsFieldError(err); ok {
		return helper.JsonValidationError(c, fe.Message, map[string][]string{string(fe.Field): {fe.Message}})
	}

	status, field, msg := classify(err)
	if field != "" {
		return helper.JsonValidationError(c, msg, map[string][]string{field: {msg}})
	}
	if status >= 500 {
		ctrl.Log.Error().Err(err).Int("status", status).Str("path", c.Path()).Msg("funnel request failed")
	} else {
		ctrl.Log.Debug().Err(err).Int("status", status).Str("path", c.Path()).Msg("funnel request rejected")
	}
	return helper.JsonError(c, status, msg)
}

func classify(err error) (status int, field, msg string) {
	switch {
	case errors.Is(err, sessionService.ErrNotFound):
		return fiber.StatusNotFound, "", "Sessão não encontrada"
	case errors.Is(err, sessionModel.ErrUnknownVersion), errors.Is(err, sessionModel.ErrCorruptState):
		return fiber.StatusConflict, "", "Sessão inválida, comece novamente"
	case errors.Is(err, planService.ErrNoPlan):
		return fiber.StatusUnprocessableEntity, "plan", "Plano não encontrado"
	case errors.Is(err, planService.ErrInvalidAmount):
		return fiber.StatusUnprocessableEntity, "amount", "Valor mínimo de R$ 10,00"

	case errors.Is(err, verificationService.ErrPhoneTooShort):
		return fiber.StatusUnprocessableEntity, string(stepModel.FieldPhone), "Número de celular incompleto"
	case errors.Is(err, verificationService.ErrInvalidCode):
		return fiber.StatusUnprocessableEntity, string(stepModel.FieldSMSCode), "O código deve ter 6 dígitos"
	case errors.Is(err, verificationService.ErrCodeRejected):
		return fiber.StatusUnprocessableEntity, string(stepModel.FieldSMSCode), "Código inválido ou expirado"
	case errors.Is(err, verificationService.ErrPhoneAlreadyRegistered):
		return fiber.StatusConflict, "", "Este celular já está cadastrado"
	case errors.Is(err, verificationService.ErrSendFailed):
		return fiber.StatusBadGateway, "", "Não foi possível enviar o SMS"
	case errors.Is(err, verificationService.ErrVerificationFailed):
		return fiber.StatusBadGateway, "", "Não foi possível verificar o código"

	case errors.Is(err, paymentService.ErrMissingMethod):
		return fiber.StatusUnprocessableEntity, "payment_method_id", "Informe a forma de pagamento"
	case errors.Is(err, paymentService.ErrSecretTimeout):
		return fiber.StatusGatewayTimeout, "", "O pagamento ainda não está pronto. Tente novamente."
	case errors.Is(err, paymentService.ErrCreateFailed):
		return fiber.StatusBadGateway, "", "Não foi possível criar a doação"
	case errors.Is(err, paymentService.ErrInvalidSecret), errors.Is(err, service.ErrNoSecret):
		return fiber.StatusConflict, "", "Pagamento não preparado. Tente novamente."
	case errors.Is(err, service.ErrWrongStep), errors.Is(err, stepService.ErrNoTransition):
		return fiber.StatusConflict, "", "Ação indisponível nesta etapa"

	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "", "Tempo esgotado"
	}

	var se *crm.StatusError
	if errors.As(err, &se) {
		msg := strings.TrimSpace(se.Message)
		if msg == "" {
			msg = "Falha na comunicação com o servidor"
		}
		return fiber.StatusBadGateway, "", msg
	}
	return fiber.StatusInternalServerError, "", ""
}
