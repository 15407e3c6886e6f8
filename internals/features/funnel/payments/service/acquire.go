package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"funnel_backend/internals/clients/crm"
	"funnel_backend/internals/features/funnel/payments/model"
	"funnel_backend/internals/helpers/retry"
)

var (
	ErrCreateFailed  = errors.New("payments: donation could not be created")
	ErrSecretTimeout = errors.New("payments: client secret not ready")
	ErrInvalidSecret = errors.New("payments: invalid client secret")
)

// SecretBackend is the slice of the CRM used to obtain client secrets.
type SecretBackend interface {
	CreateDonation(ctx context.Context, req crm.CreateDonationRequest) (crm.CreateDonationResponse, error)
	ClientSecret(ctx context.Context, subscriptionID string) (crm.ClientSecretResponse, error)
}

// Acquirer creates the donation and waits for a usable client secret.
type Acquirer struct {
	backend SecretBackend
	policy  retry.Policy
	log     zerolog.Logger
}

func NewAcquirer(backend SecretBackend, policy retry.Policy, log zerolog.Logger) *Acquirer {
	return &Acquirer{
		backend: backend,
		policy:  policy,
		log:     log.With().Str("component", "secret_acquirer").Logger(),
	}
}

// Acquire creates the donation. If the answer has no valid secret but names a
// subscription, the secret is polled under the retry policy.
func (a *Acquirer) Acquire(ctx context.Context, req crm.CreateDonationRequest) (model.Secret, error) {
	res, err := a.backend.CreateDonation(ctx, req)
	if err != nil {
		return model.Secret{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	out := model.Secret{
		Kind:           model.KindFrom(res.SecretType, res.UseSetupIntent),
		Value:          model.SecretFrom(res.ClientSecret),
		SubscriptionID: strings.TrimSpace(res.SubscriptionID),
		DonationID:     strings.TrimSpace(res.DonationID),
	}
	if out.Valid() {
		out.Kind = refineKind(out.Kind, out.Value)
		return out, nil
	}
	if out.SubscriptionID == "" {
		return model.Secret{}, fmt.Errorf("%w: no secret and no subscription id", ErrCreateFailed)
	}

	polled, err := a.Poll(ctx, out.SubscriptionID)
	if err != nil {
		return model.Secret{}, err
	}
	out.Value = polled.Value
	if polled.Kind == model.KindSetupIntent {
		out.Kind = model.KindSetupIntent
	}
	out.Kind = refineKind(out.Kind, out.Value)
	return out, nil
}

// Poll re-requests the secret for subscriptionID until it is valid or the
// policy runs out. Backend errors during polling count as "not ready yet".
func (a *Acquirer) Poll(ctx context.Context, subscriptionID string) (model.Secret, error) {
	var found model.Secret
	attempts, err := a.policy.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		res, err := a.backend.ClientSecret(ctx, subscriptionID)
		if err != nil {
			a.log.Warn().Err(err).Int("attempt", attempt).Str("subscription_id", subscriptionID).Msg("secret poll failed")
			return false, err
		}
		secret := model.SecretFrom(res.ClientSecret)
		if !secret.Valid() {
			a.log.Debug().Int("attempt", attempt).Str("subscription_id", subscriptionID).Msg("secret not ready")
			return false, nil
		}
		found = model.Secret{
			Kind:           model.KindFrom(res.SecretType, res.UseSetupIntent),
			Value:          secret,
			SubscriptionID: subscriptionID,
		}
		return true, nil
	})
	if err != nil {
		a.log.Error().Err(err).Int("attempts", attempts).Str("subscription_id", subscriptionID).Msg("secret never became ready")
		if ctx.Err() != nil {
			return model.Secret{}, err
		}
		return model.Secret{}, fmt.Errorf("%w after %d attempts: %v", ErrSecretTimeout, attempts, err)
	}
	return found, nil
}

// refineKind trusts the secret itself when it is obviously a setup intent.
func refineKind(kind model.IntentKind, v model.ClientSecret) model.IntentKind {
	if strings.HasPrefix(string(v), "seti_") {
		return model.KindSetupIntent
	}
	return kind
}
