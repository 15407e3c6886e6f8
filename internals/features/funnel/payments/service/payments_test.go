package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnel_backend/internals/clients/crm"
	"funnel_backend/internals/features/funnel/payments/model"
	"funnel_backend/internals/helpers/retry"
)

/* ===================== fakes ===================== */

type fakeSecrets struct {
	create    crm.CreateDonationResponse
	createErr error

	readyOn int // attempt number that returns a valid secret; 0 = never
	setup   bool
	calls   int
}

func (f *fakeSecrets) CreateDonation(context.Context, crm.CreateDonationRequest) (crm.CreateDonationResponse, error) {
	return f.create, f.createErr
}

func (f *fakeSecrets) ClientSecret(_ context.Context, subID string) (crm.ClientSecretResponse, error) {
	f.calls++
	if f.readyOn != 0 && f.calls >= f.readyOn {
		s := "pi_" + subID + "_secret_ok"
		return crm.ClientSecretResponse{ClientSecret: &s, UseSetupIntent: f.setup}, nil
	}
	return crm.ClientSecretResponse{}, nil
}

func pollPolicy(t *retry.InstantTimer) retry.Policy {
	return retry.Policy{MaxAttempts: 10, Delay: time.Second, NewTimer: func() backoff.Timer { return t }}
}

type fakeInvoices struct {
	err   error
	calls []string
}

func (f *fakeInvoices) PayInvoice(_ context.Context, subID, pm string) error {
	f.calls = append(f.calls, subID+":"+pm)
	return f.err
}

type memRecorder struct {
	rows []*model.PaymentAttemptModel
}

func (m *memRecorder) Record(_ context.Context, a *model.PaymentAttemptModel) error {
	m.rows = append(m.rows, a)
	return nil
}

func str(s string) *string { return &s }

/* ===================== acquisition ===================== */

func TestAcquire_DirectSecret(t *testing.T) {
	b := &fakeSecrets{create: crm.CreateDonationResponse{
		DonationID:   "d-1",
		ClientSecret: str("pi_1_secret_a"),
	}}
	a := NewAcquirer(b, pollPolicy(&retry.InstantTimer{}), zerolog.Nop())

	s, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})

	require.NoError(t, err)
	assert.Equal(t, model.KindPaymentIntent, s.Kind)
	assert.Equal(t, model.ClientSecret("pi_1_secret_a"), s.Value)
	assert.Equal(t, "d-1", s.DonationID)
	assert.Zero(t, b.calls)
}

func TestAcquire_SetupFlagResolvedOnce(t *testing.T) {
	b := &fakeSecrets{create: crm.CreateDonationResponse{
		ClientSecret:   str("seti_1_secret_a"),
		SubscriptionID: "sub_1",
		UseSetupIntent: true,
	}}
	a := NewAcquirer(b, pollPolicy(&retry.InstantTimer{}), zerolog.Nop())

	s, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})

	require.NoError(t, err)
	assert.Equal(t, model.KindSetupIntent, s.Kind)
	assert.Equal(t, "sub_1", s.SubscriptionID)
}

func TestAcquire_PollsUntilReadyOnThirdAttempt(t *testing.T) {
	sl := &retry.InstantTimer{}
	b := &fakeSecrets{
		create:  crm.CreateDonationResponse{SubscriptionID: "sub_9", ClientSecret: str("sub_9")},
		readyOn: 3,
	}
	a := NewAcquirer(b, pollPolicy(sl), zerolog.Nop())

	s, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})

	require.NoError(t, err)
	assert.Equal(t, 3, b.calls)
	assert.Len(t, sl.Waits, 2)
	assert.True(t, s.Valid())
	assert.Equal(t, "sub_9", s.SubscriptionID)
}

func TestAcquire_PollGivesUpAfterTenAttempts(t *testing.T) {
	sl := &retry.InstantTimer{}
	b := &fakeSecrets{create: crm.CreateDonationResponse{SubscriptionID: "sub_9"}}
	a := NewAcquirer(b, pollPolicy(sl), zerolog.Nop())

	_, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})

	require.ErrorIs(t, err, ErrSecretTimeout)
	assert.Equal(t, 10, b.calls)
	require.Len(t, sl.Waits, 9)
	for _, w := range sl.Waits {
		assert.Equal(t, time.Second, w)
	}
}

func TestAcquire_NoSecretNoSubscription(t *testing.T) {
	a := NewAcquirer(&fakeSecrets{}, pollPolicy(&retry.InstantTimer{}), zerolog.Nop())
	_, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})
	require.ErrorIs(t, err, ErrCreateFailed)
}

func TestAcquire_CreateError(t *testing.T) {
	a := NewAcquirer(&fakeSecrets{createErr: errors.New("503")}, pollPolicy(&retry.InstantTimer{}), zerolog.Nop())
	_, err := a.Acquire(context.Background(), crm.CreateDonationRequest{})
	require.ErrorIs(t, err, ErrCreateFailed)
}

/* ===================== confirmation ===================== */

func paymentSecret() model.Secret {
	return model.Secret{Kind: model.KindPaymentIntent, Value: "pi_1_secret_a", SubscriptionID: "sub_1"}
}

func setupSecret() model.Secret {
	return model.Secret{Kind: model.KindSetupIntent, Value: "seti_1_secret_a", SubscriptionID: "sub_1"}
}

func TestConfirm_PaymentStatuses(t *testing.T) {
	cases := []struct {
		status string
		legacy bool
		ok     bool
	}{
		{model.StatusSucceeded, false, true},
		{model.StatusProcessing, false, true},
		{model.StatusRequiresAction, false, false},
		{model.StatusRequiresAction, true, true},
		{"requires_payment_method", true, false},
		{"canceled", false, false},
	}
	for _, tc := range cases {
		gw := NewFakeGateway()
		gw.PaymentStatus = tc.status
		c := NewConfirmer(gw, &fakeInvoices{}, ConfirmerOptions{AcceptRequiresAction: tc.legacy}, zerolog.Nop())

		res, err := c.Confirm(context.Background(), uuid.New(), paymentSecret(), "pm_card")

		require.NoError(t, err)
		assert.Equal(t, tc.ok, res.Succeeded, "%s legacy=%v", tc.status, tc.legacy)
		if !tc.ok {
			assert.ErrorIs(t, res.Reason, ErrIntentNotSucceeded)
		}
	}
}

func TestConfirm_SetupPathPaysInvoice(t *testing.T) {
	gw := NewFakeGateway()
	inv := &fakeInvoices{}
	rec := &memRecorder{}
	c := NewConfirmer(gw, inv, ConfirmerOptions{Recorder: rec}, zerolog.Nop())

	res, err := c.Confirm(context.Background(), uuid.New(), setupSecret(), "pm_card")

	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, []string{"seti_1"}, gw.SetupCalls)
	assert.Empty(t, gw.PaymentCalls)
	assert.Equal(t, []string{"sub_1:pm_card"}, inv.calls)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, model.AttemptSucceeded, rec.rows[0].PaymentAttemptOutcome)
}

func TestConfirm_SetupFailures(t *testing.T) {
	t.Run("sdk error", func(t *testing.T) {
		gw := NewFakeGateway()
		gw.Err = errors.New("card_declined")
		inv := &fakeInvoices{}
		c := NewConfirmer(gw, inv, ConfirmerOptions{}, zerolog.Nop())

		res, err := c.Confirm(context.Background(), uuid.New(), setupSecret(), "pm_card")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Empty(t, inv.calls)
	})

	t.Run("status not succeeded", func(t *testing.T) {
		gw := NewFakeGateway()
		gw.SetupStatus = "requires_action"
		c := NewConfirmer(gw, &fakeInvoices{}, ConfirmerOptions{AcceptRequiresAction: true}, zerolog.Nop())

		res, err := c.Confirm(context.Background(), uuid.New(), setupSecret(), "pm_card")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
	})

	t.Run("invoice pay fails", func(t *testing.T) {
		rec := &memRecorder{}
		c := NewConfirmer(NewFakeGateway(), &fakeInvoices{err: errors.New("402")}, ConfirmerOptions{Recorder: rec}, zerolog.Nop())

		res, err := c.Confirm(context.Background(), uuid.New(), setupSecret(), "pm_card")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.ErrorIs(t, res.Reason, ErrInvoicePayFailed)
		require.Len(t, rec.rows, 1)
		assert.Equal(t, model.AttemptFailed, rec.rows[0].PaymentAttemptOutcome)
		require.NotNil(t, rec.rows[0].PaymentAttemptError)
	})
}

func TestConfirm_InvalidSecretIsRejectedUpfront(t *testing.T) {
	gw := NewFakeGateway()
	c := NewConfirmer(gw, &fakeInvoices{}, ConfirmerOptions{}, zerolog.Nop())

	_, err := c.Confirm(context.Background(), uuid.New(), model.Secret{Value: "sub_1"}, "pm")

	require.ErrorIs(t, err, ErrInvalidSecret)
	assert.Empty(t, gw.PaymentCalls)
}
