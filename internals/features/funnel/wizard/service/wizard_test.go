package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"funnel_backend/internals/clients/crm"
	paymentModel "funnel_backend/internals/features/funnel/payments/model"
	paymentService "funnel_backend/internals/features/funnel/payments/service"
	planModel "funnel_backend/internals/features/funnel/plans/model"
	planService "funnel_backend/internals/features/funnel/plans/service"
	sessionModel "funnel_backend/internals/features/funnel/sessions/model"
	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	stepModel "funnel_backend/internals/features/funnel/steps/model"
	stepService "funnel_backend/internals/features/funnel/steps/service"
	verificationService "funnel_backend/internals/features/funnel/verification/service"
	"funnel_backend/internals/helpers/retry"
)

/* ===================== fake CRM ===================== */

type fakeCRM struct {
	mu sync.Mutex

	verify       crm.VerifySMSResponse
	subscription crm.SubscriptionStatus
	secret       *string
	createErr    error
	emailErr     error

	sent      []string
	creates   []crm.CreateDonationRequest
	confirms  []string
	emails    []string
	causes    []string
	secretGet int
	statusGet int
}

func (f *fakeCRM) SendSMS(_ context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, phone)
	return nil
}

func (f *fakeCRM) VerifySMS(context.Context, string, string) (crm.VerifySMSResponse, error) {
	return f.verify, nil
}

func (f *fakeCRM) SubscriptionStatus(context.Context, string) (crm.SubscriptionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusGet++
	return f.subscription, nil
}

func (f *fakeCRM) CreateDonation(_ context.Context, req crm.CreateDonationRequest) (crm.CreateDonationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return crm.CreateDonationResponse{}, f.createErr
	}
	return crm.CreateDonationResponse{DonationID: "don_1", SubscriptionID: "sub_1", ClientSecret: f.secret}, nil
}

func (f *fakeCRM) ClientSecret(context.Context, string) (crm.ClientSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secretGet++
	return crm.ClientSecretResponse{}, nil
}

func (f *fakeCRM) PayInvoice(context.Context, string, string) error { return nil }

func (f *fakeCRM) ConfirmDonation(_ context.Context, donationID string, _ crm.ConfirmDonationRequest) (crm.ConfirmDonationResponse, error) {
	f.confirms = append(f.confirms, donationID)
	return crm.ConfirmDonationResponse{UserID: "user_new"}, nil
}

func (f *fakeCRM) UpdateEmail(_ context.Context, _ crm.DonorRef, email string) error {
	if f.emailErr != nil {
		return f.emailErr
	}
	f.emails = append(f.emails, email)
	return nil
}

func (f *fakeCRM) RecordCause(_ context.Context, _ crm.DonorRef, cause string) error {
	f.causes = append(f.causes, cause)
	return nil
}

/* ===================== harness ===================== */

type harness struct {
	w       *Wizard
	crm     *fakeCRM
	gateway *paymentService.FakeGateway
	store   *sessionService.MemoryStore
}

func success() *bool { b := true; return &b }

func newHarness(t *testing.T, devHash string) *harness {
	t.Helper()
	secret := "pi_1_secret_abc"
	c := &fakeCRM{verify: crm.VerifySMSResponse{Success: success()}, secret: &secret}
	gw := paymentService.NewFakeGateway()
	store := sessionService.NewMemoryStore()
	log := zerolog.Nop()
	noWait := retry.Policy{MaxAttempts: 10, Delay: time.Second, NewTimer: func() backoff.Timer { return &retry.InstantTimer{} }}

	w := New(Deps{
		Store:         store,
		Verifier:      verificationService.New(c, log),
		Acquirer:      paymentService.NewAcquirer(c, noWait, log),
		Confirmer:     paymentService.NewConfirmer(gw, c, paymentService.ConfirmerOptions{}, log),
		Donors:        c,
		DevAccessHash: devHash,
		Log:           log,
	})
	return &harness{w: w, crm: c, gateway: gw, store: store}
}

func (h *harness) start(t *testing.T) *sessionModel.State {
	t.Helper()
	s, err := h.w.Start(context.Background(), StartInput{Selection: planModel.Selection{Plan: "apoiador", Periodicity: "trimestral"}})
	require.NoError(t, err)
	return s
}

func (h *harness) advance(t *testing.T, id uuid.UUID, value string, want stepModel.Step) *sessionModel.State {
	t.Helper()
	s, err := h.w.Advance(context.Background(), id, value)
	require.NoError(t, err)
	require.Equal(t, want, s.Step)
	return s
}

// toPayment walks a new donor up to the payment step.
func (h *harness) toPayment(t *testing.T) *sessionModel.State {
	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)
	h.advance(t, s.ID, "Maria Silva", stepModel.StepPhone)
	h.advance(t, s.ID, "(11) 99999-8888", stepModel.StepSMS)
	return h.advance(t, s.ID, "123456", stepModel.StepPayment)
}

/* ===================== tests ===================== */

func TestStart_ResolvesPlan(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)

	assert.Equal(t, stepModel.StepImpact, s.Step)
	assert.Equal(t, "apoiador", s.PlanInfo.ID)
	assert.Equal(t, 180.0, s.PlanInfo.Value)
	assert.Equal(t, "R$ 180,00/trimestre", s.PlanInfo.DisplayValue)
}

func TestStart_NoPlan(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.w.Start(context.Background(), StartInput{})
	require.ErrorIs(t, err, planService.ErrNoPlan)
}

func TestStart_DevAccessFallsBackToDefaultPlan(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	h := newHarness(t, string(hash))

	s, err := h.w.Start(context.Background(), StartInput{DevAccess: "letmein", Step: "payment"})
	require.NoError(t, err)
	assert.True(t, s.DevAccess)
	assert.Equal(t, planModel.DefaultPlan, s.PlanInfo.ID)
	assert.Equal(t, stepModel.StepPayment, s.Step)

	_, err = h.w.Start(context.Background(), StartInput{DevAccess: "wrong"})
	require.ErrorIs(t, err, planService.ErrNoPlan)
}

func TestStart_StepParameter(t *testing.T) {
	h := newHarness(t, "")
	sel := planModel.Selection{Plan: "essencial"}

	s, err := h.w.Start(context.Background(), StartInput{Selection: sel, Step: "1"})
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepName, s.Step)

	s, err = h.w.Start(context.Background(), StartInput{Selection: sel, Step: "42"})
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, s.Step)

	s, err = h.w.Start(context.Background(), StartInput{Selection: sel, Step: "success"})
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, s.Step)
}

func TestView_ClampsCorruptStep(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)
	s.Step = "nowhere"
	require.NoError(t, h.store.Save(context.Background(), s))

	got, err := h.w.View(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, got.Step)

	again, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, again.Step)
}

func TestAdvance_InvalidInputKeepsStep(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)

	got, err := h.w.Advance(context.Background(), s.ID, "Maria")
	fe, ok := stepService.AsFieldError(err)
	require.True(t, ok)
	assert.Equal(t, stepModel.FieldName, fe.Field)
	assert.NotEmpty(t, fe.Message)
	assert.Equal(t, stepModel.StepName, got.Step)

	stored, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepName, stored.Step)
}

func TestNewDonorLandsOnPayment(t *testing.T) {
	h := newHarness(t, "")
	s := h.toPayment(t)

	assert.Equal(t, []string{"5511999998888"}, h.crm.sent)
	assert.Zero(t, h.crm.statusGet, "a brand-new donor must not trigger the subscription check")
	require.Len(t, h.crm.creates, 1)
	assert.Equal(t, "Maria Silva", h.crm.creates[0].Name)
	assert.Equal(t, 180.0, h.crm.creates[0].Value)
	assert.NotEqual(t, stepModel.StepSuccess, s.Step)
	assert.False(t, s.Data.PaymentSucceeded)
	assert.True(t, s.Flags.Verified)
	assert.Empty(t, s.Data.SMSCode)
	require.NotNil(t, s.Secret)
	assert.Equal(t, paymentModel.KindPaymentIntent, s.Secret.Kind)
	assert.Equal(t, "(11) 99999-8888", s.Data.PhoneFormatted)
}

func TestExistingActiveDonorSkipsPayment(t *testing.T) {
	h := newHarness(t, "")
	h.crm.verify = crm.VerifySMSResponse{User: &crm.User{ID: "u1", Name: "Ana"}}
	h.crm.subscription = crm.SubscriptionStatus{Active: true}

	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)
	h.advance(t, s.ID, "Ana Souza", stepModel.StepPhone)
	h.advance(t, s.ID, "11999998888", stepModel.StepSMS)
	got := h.advance(t, s.ID, "654321", stepModel.StepWelcome)

	assert.Empty(t, h.crm.creates)
	assert.Equal(t, 1, h.crm.statusGet)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Flags.ActiveSubscription)
}

func TestExistingInactiveDonorPays(t *testing.T) {
	h := newHarness(t, "")
	h.crm.verify = crm.VerifySMSResponse{User: &crm.User{ID: "u1"}}

	s := h.toPayment(t)
	require.Len(t, h.crm.creates, 1)
	assert.Equal(t, "u1", h.crm.creates[0].UserID)
	assert.Equal(t, "u1", s.UserID)
}

func TestSecretTimeoutKeepsPaymentStep(t *testing.T) {
	h := newHarness(t, "")
	h.crm.secret = nil

	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)
	h.advance(t, s.ID, "Maria Silva", stepModel.StepPhone)
	h.advance(t, s.ID, "11999998888", stepModel.StepSMS)

	_, err := h.w.Advance(context.Background(), s.ID, "123456")
	require.ErrorIs(t, err, paymentService.ErrSecretTimeout)
	assert.Equal(t, 10, h.crm.secretGet)

	stored, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepPayment, stored.Step)
	assert.Nil(t, stored.Secret)

	_, err = h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.ErrorIs(t, err, ErrNoSecret)

	ready := "pi_2_secret_x"
	h.crm.secret = &ready
	got, err := h.w.RetryPayment(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Secret)
	assert.True(t, got.Secret.Valid())
}

func TestPaymentSuccessThenOnboarding(t *testing.T) {
	h := newHarness(t, "")
	s := h.toPayment(t)

	got, err := h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepSuccess, got.Step)
	assert.True(t, got.Data.PaymentSucceeded)
	assert.Equal(t, sessionModel.Flags{Verified: true, Role: sessionModel.RoleDonor, ActiveSubscription: true, FirstAccess: true}, got.Flags)
	assert.Equal(t, []string{"don_1"}, h.crm.confirms)
	assert.Equal(t, "user_new", got.UserID)

	h.advance(t, s.ID, "", stepModel.StepWelcome)
	h.advance(t, s.ID, "", stepModel.StepCause)
	h.advance(t, s.ID, "saude", stepModel.StepEmail)
	done := h.advance(t, s.ID, "maria@example.com", stepModel.StepEmail)
	assert.True(t, done.Completed)
	assert.Equal(t, []string{"saude"}, h.crm.causes)
	assert.Equal(t, []string{"maria@example.com"}, h.crm.emails)

	back, err := h.w.Back(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepSuccess, back.Step)
}

func TestBackFromEmailWithoutPayment(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)
	s.Step = stepModel.StepEmail
	require.NoError(t, h.store.Save(context.Background(), s))

	got, err := h.w.Back(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepPayment, got.Step)
}

func TestPaymentDeclinedThenRetry(t *testing.T) {
	h := newHarness(t, "")
	h.gateway.PaymentStatus = "requires_payment_method"
	s := h.toPayment(t)

	got, err := h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepFailure, got.Step)
	assert.True(t, got.Data.PaymentFailed)

	_, err = h.w.Advance(context.Background(), s.ID, "")
	require.ErrorIs(t, err, ErrWrongStep)

	got, err = h.w.RetryPayment(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepPayment, got.Step)
	assert.False(t, got.Data.PaymentFailed)
	assert.Len(t, h.crm.creates, 1)

	h.gateway.PaymentStatus = paymentModel.StatusSucceeded
	got, err = h.w.ConfirmPayment(context.Background(), s.ID, "pm_other")
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepSuccess, got.Step)
}

func TestResendClearsCode(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)
	h.advance(t, s.ID, "Maria Silva", stepModel.StepPhone)
	h.advance(t, s.ID, "11999998888", stepModel.StepSMS)

	got, err := h.w.ResendSMS(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepSMS, got.Step)
	assert.Empty(t, got.Data.SMSCode)
	assert.Len(t, h.crm.sent, 2)

	_, err = h.w.ResendSMS(context.Background(), uuid.New())
	require.ErrorIs(t, err, sessionService.ErrNotFound)
}

func TestEmailFailureKeepsStep(t *testing.T) {
	h := newHarness(t, "")
	h.crm.emailErr = errors.New("boom")
	s := h.start(t)
	s.Step = stepModel.StepEmail
	require.NoError(t, h.store.Save(context.Background(), s))

	got, err := h.w.Advance(context.Background(), s.ID, "maria@example.com")
	require.Error(t, err)
	assert.Equal(t, stepModel.StepEmail, got.Step)
	assert.False(t, got.Completed)
}

func TestConcurrentAdvanceIsSerialized(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.w.Advance(context.Background(), s.ID, "")
		}()
	}
	wg.Wait()

	// impact → name, then name rejects the empty value
	got, err := h.w.View(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepName, got.Step)
}

func TestBackAfterPaymentNeverChargesAgain(t *testing.T) {
	h := newHarness(t, "")
	s := h.toPayment(t)

	_, err := h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.NoError(t, err)

	back, err := h.w.Back(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepSuccess, back.Step)

	// even a session pushed back onto payment refuses a second charge
	back.Step = stepModel.StepPayment
	require.NoError(t, h.store.Save(context.Background(), back))
	h.gateway.PaymentStatus = "requires_payment_method"

	got, err := h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.ErrorIs(t, err, ErrWrongStep)
	assert.True(t, got.Data.PaymentSucceeded)
	assert.False(t, got.Data.PaymentFailed)
	assert.Len(t, h.gateway.PaymentCalls, 1)

	_, err = h.w.RetryPayment(context.Background(), s.ID)
	require.ErrorIs(t, err, ErrWrongStep)
	assert.Len(t, h.crm.creates, 1)
	assert.Len(t, h.crm.confirms, 1)
}

func TestActiveDonorCannotReachPayment(t *testing.T) {
	h := newHarness(t, "")
	h.crm.verify = crm.VerifySMSResponse{User: &crm.User{ID: "u1", Name: "Ana"}}
	h.crm.subscription = crm.SubscriptionStatus{Active: true}

	s := h.start(t)
	h.advance(t, s.ID, "", stepModel.StepName)
	h.advance(t, s.ID, "Ana Souza", stepModel.StepPhone)
	h.advance(t, s.ID, "11999998888", stepModel.StepSMS)
	h.advance(t, s.ID, "654321", stepModel.StepWelcome)

	for i := 0; i < 3; i++ {
		got, err := h.w.Back(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, stepModel.StepWelcome, got.Step)
	}

	h.advance(t, s.ID, "", stepModel.StepCause)
	h.advance(t, s.ID, "educacao", stepModel.StepEmail)
	got, err := h.w.Back(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepCause, got.Step)

	got.Step = stepModel.StepPayment
	require.NoError(t, h.store.Save(context.Background(), got))
	_, err = h.w.RetryPayment(context.Background(), s.ID)
	require.ErrorIs(t, err, ErrWrongStep)
	_, err = h.w.ConfirmPayment(context.Background(), s.ID, "pm_card")
	require.ErrorIs(t, err, ErrWrongStep)
	assert.Empty(t, h.crm.creates)
	assert.Empty(t, h.gateway.PaymentCalls)
}

func TestBackFromPaymentKeepsTheDonation(t *testing.T) {
	h := newHarness(t, "")
	s := h.toPayment(t)
	secret := *s.Secret

	got, err := h.w.Back(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepPayment, got.Step)
	assert.Len(t, h.crm.creates, 1)
	assert.Len(t, h.crm.sent, 1)
	assert.Equal(t, secret, *got.Secret)
}

func TestReverifyReusesPreparedSecret(t *testing.T) {
	h := newHarness(t, "")
	s := h.toPayment(t)
	secret := *s.Secret

	s.Step = stepModel.StepSMS
	require.NoError(t, h.store.Save(context.Background(), s))

	got := h.advance(t, s.ID, "123456", stepModel.StepPayment)
	assert.Len(t, h.crm.creates, 1)
	assert.Equal(t, secret, *got.Secret)
}

func TestChangePlan_FallsBackToSessionSelection(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)

	got, err := h.w.ChangePlan(context.Background(), s.ID, planModel.Selection{Periodicity: "anual"})
	require.NoError(t, err)
	assert.Equal(t, "apoiador", got.PlanInfo.ID)
	assert.Equal(t, 720.0, got.PlanInfo.Value)
	assert.Equal(t, "R$ 720,00/ano", got.PlanInfo.DisplayValue)
	assert.Equal(t, 720.0, got.Data.Amount)

	got, err = h.w.ChangePlan(context.Background(), s.ID, planModel.Selection{Plan: "platinum", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, "platinum", got.PlanInfo.ID)
	assert.Equal(t, 600.0, got.PlanInfo.Value)

	stored, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, planModel.Selection{Plan: "platinum", Periodicity: "anual", Amount: 50}, stored.Selection)
}

func TestChangePlan_Rejections(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)

	_, err := h.w.ChangePlan(context.Background(), s.ID, planModel.Selection{Plan: "platinum", Amount: 5})
	require.ErrorIs(t, err, planService.ErrInvalidAmount)
	_, err = h.w.ChangePlan(context.Background(), s.ID, planModel.Selection{Plan: "ouro"})
	require.ErrorIs(t, err, planService.ErrNoPlan)

	stored, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "apoiador", stored.PlanInfo.ID)

	paid := h.toPayment(t)
	_, err = h.w.ChangePlan(context.Background(), paid.ID, planModel.Selection{Plan: "essencial"})
	require.ErrorIs(t, err, ErrWrongStep)
}

func TestView_UnknownStoredStepResetsToImpact(t *testing.T) {
	h := newHarness(t, "")
	s := h.start(t)
	s.Step = stepModel.Step("checkout")
	require.NoError(t, h.store.Save(context.Background(), s))

	got, err := h.w.View(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, got.Step)

	stored, err := h.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, stepModel.StepImpact, stored.Step)
}
