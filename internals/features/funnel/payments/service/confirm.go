package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"funnel_backend/internals/features/funnel/payments/model"
)

var (
	ErrIntentNotSucceeded = errors.New("payments: intent did not succeed")
	ErrInvoicePayFailed   = errors.New("payments: invoice payment failed")
	ErrMissingMethod      = errors.New("payments: payment method is required")
)

// Gateway is the external payment provider. A confirm call resolves with
// either an error or an intent carrying a status string.
type Gateway interface {
	ConfirmPaymentIntent(ctx context.Context, secret model.ClientSecret, paymentMethodID string) (model.Intent, error)
	ConfirmSetupIntent(ctx context.Context, secret model.ClientSecret, paymentMethodID string) (model.Intent, error)
}

// InvoiceBackend pays the open subscription invoice with a saved method.
type InvoiceBackend interface {
	PayInvoice(ctx context.Context, subscriptionID, paymentMethodID string) error
}

// AttemptRecorder stores the attempt ledger. Failures are logged, never surfaced.
type AttemptRecorder interface {
	Record(ctx context.Context, a *model.PaymentAttemptModel) error
}

type ConfirmerOptions struct {
	// AcceptRequiresAction treats requires_action as success (legacy card element flow).
	AcceptRequiresAction bool
	Recorder             AttemptRecorder
}

type Confirmer struct {
	gateway  Gateway
	invoices InvoiceBackend
	opts     ConfirmerOptions
	log      zerolog.Logger
}

func NewConfirmer(gateway Gateway, invoices InvoiceBackend, opts ConfirmerOptions, log zerolog.Logger) *Confirmer {
	return &Confirmer{
		gateway:  gateway,
		invoices: invoices,
		opts:     opts,
		log:      log.With().Str("component", "payment_confirmer").Logger(),
	}
}

// Result of one confirmation. Reason is set when Succeeded is false.
type Result struct {
	Succeeded bool
	Intent    model.Intent
	Reason    error
}

// Confirm drives the path chosen by secret.Kind. Payment failures come back
// as an unsuccessful Result; the error return is reserved for unusable input.
func (c *Confirmer) Confirm(ctx context.Context, sessionID uuid.UUID, secret model.Secret, paymentMethodID string) (Result, error) {
	if !secret.Valid() {
		return Result{}, ErrInvalidSecret
	}

	var res Result
	switch secret.Kind {
	case model.KindSetupIntent:
		if paymentMethodID == "" {
			return Result{}, ErrMissingMethod
		}
		res = c.confirmSetup(ctx, secret, paymentMethodID)
	default:
		res = c.confirmPayment(ctx, secret, paymentMethodID)
	}

	c.record(ctx, sessionID, secret, res)
	return res, nil
}

func (c *Confirmer) confirmSetup(ctx context.Context, secret model.Secret, pm string) Result {
	intent, err := c.gateway.ConfirmSetupIntent(ctx, secret.Value, pm)
	if err != nil {
		return Result{Intent: intent, Reason: err}
	}
	if intent.Status != model.StatusSucceeded {
		return Result{Intent: intent, Reason: fmt.Errorf("%w: setup status %q", ErrIntentNotSucceeded, intent.Status)}
	}

	method := intent.PaymentMethodID
	if method == "" {
		method = pm
	}
	if err := c.invoices.PayInvoice(ctx, secret.SubscriptionID, method); err != nil {
		return Result{Intent: intent, Reason: fmt.Errorf("%w: %v", ErrInvoicePayFailed, err)}
	}
	return Result{Succeeded: true, Intent: intent}
}

func (c *Confirmer) confirmPayment(ctx context.Context, secret model.Secret, pm string) Result {
	intent, err := c.gateway.ConfirmPaymentIntent(ctx, secret.Value, pm)
	if err != nil {
		return Result{Intent: intent, Reason: err}
	}
	if c.acceptable(intent.Status) {
		return Result{Succeeded: true, Intent: intent}
	}
	return Result{Intent: intent, Reason: fmt.Errorf("%w: payment status %q", ErrIntentNotSucceeded, intent.Status)}
}

func (c *Confirmer) acceptable(status string) bool {
	switch status {
	case model.StatusSucceeded, model.StatusProcessing:
		return true
	case model.StatusRequiresAction:
		return c.opts.AcceptRequiresAction
	}
	return false
}

func (c *Confirmer) record(ctx context.Context, sessionID uuid.UUID, secret model.Secret, res Result) {
	var ev *zerolog.Event
	if res.Succeeded {
		ev = c.log.Info()
	} else {
		ev = c.log.Warn().AnErr("reason", res.Reason)
	}
	ev.Str("session_id", sessionID.String()).
		Str("kind", string(secret.Kind)).
		Str("intent_id", res.Intent.ID).
		Str("status", res.Intent.Status).
		Bool("succeeded", res.Succeeded).
		Msg("payment confirmation")

	if c.opts.Recorder == nil {
		return
	}

	row := &model.PaymentAttemptModel{
		PaymentAttemptID:        uuid.New(),
		PaymentAttemptSessionID: sessionID,
		PaymentAttemptKind:      secret.Kind,
		PaymentAttemptOutcome:   model.AttemptFailed,
	}
	if res.Succeeded {
		row.PaymentAttemptOutcome = model.AttemptSucceeded
	}
	intentID := res.Intent.ID
	if intentID == "" {
		intentID = secret.Value.IntentID()
	}
	row.PaymentAttemptIntentID = strPtr(intentID)
	row.PaymentAttemptSubscriptionID = strPtr(secret.SubscriptionID)
	row.PaymentAttemptStatus = strPtr(res.Intent.Status)
	if res.Reason != nil {
		row.PaymentAttemptError = strPtr(res.Reason.Error())
	}
	if raw, err := sonic.Marshal(res.Intent); err == nil {
		row.PaymentAttemptPayload = datatypes.JSON(raw)
	}

	if err := c.opts.Recorder.Record(ctx, row); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("payment attempt not recorded")
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
