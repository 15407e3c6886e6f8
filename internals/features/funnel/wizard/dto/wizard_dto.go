package dto

import (
	"time"

	paymentModel "funnel_backend/internals/features/funnel/payments/model"
	planModel "funnel_backend/internals/features/funnel/plans/model"
	sessionModel "funnel_backend/internals/features/funnel/sessions/model"
	stepModel "funnel_backend/internals/features/funnel/steps/model"
)

/* ===================== Requests ===================== */

// StartQuery is bound from the query string of POST /sessions.
type StartQuery struct {
	Plan        string `query:"plan"`
	Periodicity string `query:"periodicity"`
	Amount      string `query:"amount"`
	Step        string `query:"step"`
	DevAccess   string `query:"dev_access"`
	Origin      string `query:"origin"`
}

// PlanQuery is bound from the query string of POST /session/plan.
type PlanQuery struct {
	Plan        string `query:"plan"`
	Periodicity string `query:"periodicity"`
	Amount      string `query:"amount"`
}

type AdvanceRequest struct {
	Value string `json:"value" validate:"max=300"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=120"`
}

/* ===================== Responses ===================== */

type StepView struct {
	Name        stepModel.Step      `json:"name"`
	Index       int                 `json:"index"`
	Total       int                 `json:"total"`
	Question    string              `json:"question"`
	Placeholder string              `json:"placeholder,omitempty"`
	Field       stepModel.Field     `json:"field,omitempty"`
	InputType   stepModel.InputType `json:"input_type"`
	Options     []string            `json:"options,omitempty"`
}

type DonorView struct {
	LegalName        string `json:"legal_name,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	Cause            string `json:"cause,omitempty"`
	PaymentSucceeded bool   `json:"payment_succeeded"`
	PaymentFailed    bool   `json:"payment_failed"`
}

// PaymentView is what the client needs to mount the card form.
type PaymentView struct {
	Kind         paymentModel.IntentKind `json:"kind"`
	ClientSecret string                  `json:"client_secret"`
	Ready        bool                    `json:"ready"`
}

type SessionView struct {
	SessionID string             `json:"session_id"`
	Step      StepView           `json:"step"`
	Plan      planModel.PlanInfo `json:"plan"`
	Donor     DonorView          `json:"donor"`
	Payment   *PaymentView       `json:"payment,omitempty"`
	Flags     sessionModel.Flags `json:"flags"`
	Completed bool               `json:"completed"`
	DevAccess bool               `json:"dev_access,omitempty"`
}

// SessionResponse pairs the view with a freshly issued token.
type SessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Session   SessionView `json:"session"`
}

func ToSessionView(s *sessionModel.State) SessionView {
	d := stepModel.DescriptorOf(s.Step)
	v := SessionView{
		SessionID: s.ID.String(),
		Step: StepView{
			Name:        s.Step,
			Index:       s.Step.Index(),
			Total:       len(stepModel.Order),
			Question:    d.Question,
			Placeholder: d.Placeholder,
			Field:       d.Field,
			InputType:   d.InputType,
		},
		Plan: s.PlanInfo,
		Donor: DonorView{
			LegalName:        s.Data.LegalName,
			Phone:            s.Data.PhoneFormatted,
			Email:            s.Data.Email,
			Cause:            s.Data.Cause,
			PaymentSucceeded: s.Data.PaymentSucceeded,
			PaymentFailed:    s.Data.PaymentFailed,
		},
		Flags:     s.Flags,
		Completed: s.Completed,
		DevAccess: s.DevAccess,
	}
	if s.Step == stepModel.StepCause {
		v.Step.Options = stepModel.Causes
	}
	if s.Step == stepModel.StepPayment {
		p := &PaymentView{Kind: paymentModel.KindPaymentIntent}
		if s.Secret != nil {
			p.Kind = s.Secret.Kind
			p.ClientSecret = string(s.Secret.Value)
			p.Ready = s.Secret.Valid()
		}
		v.Payment = p
	}
	return v
}
