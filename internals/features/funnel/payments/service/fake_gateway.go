package service

import (
	"context"
	"sync"

	"funnel_backend/internals/features/funnel/payments/model"
)

// FakeGateway answers confirm calls with preset statuses. It backs the
// in-memory mode of the serve command and the package tests.
type FakeGateway struct {
	mu sync.Mutex

	PaymentStatus string
	SetupStatus   string
	Err           error

	PaymentCalls []string
	SetupCalls   []string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{PaymentStatus: model.StatusSucceeded, SetupStatus: model.StatusSucceeded}
}

func (f *FakeGateway) ConfirmPaymentIntent(_ context.Context, secret model.ClientSecret, pm string) (model.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PaymentCalls = append(f.PaymentCalls, secret.IntentID())
	if f.Err != nil {
		return model.Intent{ID: secret.IntentID()}, f.Err
	}
	return model.Intent{ID: secret.IntentID(), Status: f.PaymentStatus, PaymentMethodID: pm}, nil
}

func (f *FakeGateway) ConfirmSetupIntent(_ context.Context, secret model.ClientSecret, pm string) (model.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetupCalls = append(f.SetupCalls, secret.IntentID())
	if f.Err != nil {
		return model.Intent{ID: secret.IntentID()}, f.Err
	}
	return model.Intent{ID: secret.IntentID(), Status: f.SetupStatus, PaymentMethodID: pm}, nil
}
