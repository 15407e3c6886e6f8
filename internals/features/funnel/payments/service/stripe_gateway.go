package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"funnel_backend/internals/features/funnel/payments/model"
)

// StripeGateway confirms intents server-side. The intent id is recovered from
// the client secret, so the secret stays the single handle the flow carries.
type StripeGateway struct {
	api       *client.API
	returnURL string
}

type StripeOptions struct {
	SecretKey string
	ReturnURL string
	// Backends overrides the API endpoint (tests).
	Backends *stripe.Backends
}

func NewStripeGateway(opts StripeOptions) *StripeGateway {
	api := &client.API{}
	api.Init(opts.SecretKey, opts.Backends)
	return &StripeGateway{api: api, returnURL: opts.ReturnURL}
}

func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, secret model.ClientSecret, paymentMethodID string) (model.Intent, error) {
	id := secret.IntentID()
	if id == "" {
		return model.Intent{}, ErrInvalidSecret
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	if g.returnURL != "" {
		params.ReturnURL = stripe.String(g.returnURL)
	}

	pi, err := g.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return model.Intent{ID: id}, wrapStripe(err)
	}
	out := model.Intent{ID: pi.ID, Status: string(pi.Status)}
	if pi.PaymentMethod != nil {
		out.PaymentMethodID = pi.PaymentMethod.ID
	}
	return out, nil
}

func (g *StripeGateway) ConfirmSetupIntent(ctx context.Context, secret model.ClientSecret, paymentMethodID string) (model.Intent, error) {
	id := secret.IntentID()
	if id == "" {
		return model.Intent{}, ErrInvalidSecret
	}

	params := &stripe.SetupIntentConfirmParams{}
	params.Context = ctx
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	if g.returnURL != "" {
		params.ReturnURL = stripe.String(g.returnURL)
	}

	si, err := g.api.SetupIntents.Confirm(id, params)
	if err != nil {
		return model.Intent{ID: id}, wrapStripe(err)
	}
	out := model.Intent{ID: si.ID, Status: string(si.Status)}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	return out, nil
}

func wrapStripe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("stripe: %s (%s): %w", se.Msg, se.Code, err)
	}
	return fmt.Errorf("stripe: %w", err)
}
