package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
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
)

var (
	// ErrWrongStep means the action does not belong to the active step.
	ErrWrongStep = errors.New("wizard: action not available on this step")
	// ErrNoSecret means the payment step has no usable client secret yet.
	ErrNoSecret = errors.New("wizard: payment not prepared")
)

// Donors is the part of the CRM used outside verification and payment setup.
type Donors interface {
	SubscriptionStatus(ctx context.Context, userID string) (crm.SubscriptionStatus, error)
	ConfirmDonation(ctx context.Context, donationID string, req crm.ConfirmDonationRequest) (crm.ConfirmDonationResponse, error)
	UpdateEmail(ctx context.Context, donor crm.DonorRef, email string) error
	RecordCause(ctx context.Context, donor crm.DonorRef, cause string) error
}

type Deps struct {
	Store     sessionService.Store
	Verifier  *verificationService.Service
	Acquirer  *paymentService.Acquirer
	Confirmer *paymentService.Confirmer
	Donors    Donors

	// DevAccessHash is a bcrypt hash; empty disables developer access.
	DevAccessHash string
	Log           zerolog.Logger
	Now           func() time.Time
}

// Wizard drives one funnel session per call. Calls on the same session are
// serialized; state is saved before the call returns.
type Wizard struct {
	d     Deps
	locks *sessionLocks
	log   zerolog.Logger
}

func New(d Deps) *Wizard {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Wizard{
		d:     d,
		locks: newSessionLocks(),
		log:   d.Log.With().Str("component", "wizard").Logger(),
	}
}

/* ===================== Start / View ===================== */

type StartInput struct {
	Selection planModel.Selection
	Step      string
	DevAccess string
	Origin    string
}

// Start resolves the plan and opens a new session. It fails with
// planService.ErrNoPlan when nothing resolves and developer access is absent.
func (w *Wizard) Start(ctx context.Context, in StartInput) (*sessionModel.State, error) {
	dev := w.devAccess(in.DevAccess)

	info, sel, err := planService.Resolve(in.Selection, planModel.Selection{}, dev)
	if err != nil {
		return nil, err
	}

	s := sessionModel.NewState(w.d.Now())
	s.Selection = sel
	s.PlanInfo = info
	s.Data.PlanID = info.ID
	s.Data.Amount = info.Value
	s.DevAccess = dev
	s.Origin = strings.TrimSpace(in.Origin)
	s.Step = w.entryStep(s.ID, in.Step, dev)

	if err := w.d.Store.Create(ctx, s); err != nil {
		return nil, err
	}
	w.log.Info().
		Str("session_id", s.ID.String()).
		Str("plan", info.ID).
		Str("periodicity", string(info.Periodicity)).
		Bool("dev_access", dev).
		Msg("funnel session started")
	return s, nil
}

// entryStep honours the step parameter. Without developer access only steps
// that need no earlier answers can be entered directly.
func (w *Wizard) entryStep(id uuid.UUID, raw string, dev bool) stepModel.Step {
	step, recovered := stepService.Resolve(raw)
	if recovered {
		w.log.Error().Str("session_id", id.String()).Str("step", raw).Msg("invalid step requested, starting from the first step")
		return stepModel.StepImpact
	}
	if dev {
		return step
	}
	switch step {
	case stepModel.StepImpact, stepModel.StepName:
		return step
	}
	return stepModel.StepImpact
}

func (w *Wizard) devAccess(token string) bool {
	if w.d.DevAccessHash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(w.d.DevAccessHash), []byte(token)) == nil
}

// View loads the session, clamping a corrupt step back to the first one.
func (w *Wizard) View(ctx context.Context, id uuid.UUID) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()
	return w.load(ctx, id)
}

func (w *Wizard) load(ctx context.Context, id uuid.UUID) (*sessionModel.State, error) {
	s, err := w.d.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if seq := stepService.NewSequencer(s.Step); seq.Recovered() {
		w.log.Error().Str("session_id", id.String()).Str("step", string(s.Step)).Msg("stored step out of range, resetting")
		s.Step = seq.Current()
		if err := w.d.Store.Save(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

/* ===================== Advance / Back ===================== */

// Advance submits value for the active step. Invalid input or a failed
// collaborator call leaves the session untouched.
func (w *Wizard) Advance(ctx context.Context, id uuid.UUID, value string) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	seq := stepService.NewSequencer(s.Step)
	value = strings.TrimSpace(value)

	switch s.Step {
	case stepModel.StepPayment, stepModel.StepFailure:
		return s, fmt.Errorf("%w: %s", ErrWrongStep, s.Step)

	case stepModel.StepPhone:
		if err = seq.Validate(value); err == nil {
			err = w.sendCode(ctx, s, seq, value)
		}

	case stepModel.StepSMS:
		if err = seq.Validate(value); err == nil {
			err = w.verifyCode(ctx, s, seq, value)
		}

	case stepModel.StepEmail:
		if _, err = seq.Advance(value); err != nil {
			return s, err
		}
		if err = w.d.Donors.UpdateEmail(ctx, w.donor(s), value); err != nil {
			return s, err
		}
		s.Data.Email = value
		s.Completed = true

	default:
		if _, err = seq.Advance(value); err != nil {
			return s, err
		}
		switch s.Step {
		case stepModel.StepName:
			s.Data.LegalName = stepService.NormalizeName(value)
		case stepModel.StepCause:
			s.Data.Cause = value
			if cerr := w.d.Donors.RecordCause(ctx, w.donor(s), value); cerr != nil {
				w.log.Warn().Err(cerr).Str("session_id", id.String()).Msg("cause not recorded")
			}
		}
	}
	if err != nil {
		return s, err
	}

	s.Step = seq.Current()
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Back moves one step backwards. It never re-enters a step whose side effect
// already happened: payment stays put once the code is verified, and nothing
// leads back to payment after the donation is settled.
func (w *Wizard) Back(ctx context.Context, id uuid.UUID) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	seq := stepService.NewSequencer(s.Step)
	s.Step = seq.Retreat(progressOf(s))
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ChangePlan re-resolves the plan with sel over the session's own selection,
// so a partial change (periodicity only, say) keeps the rest. The donation is
// created at verification, so the plan is fixed from then on.
func (w *Wizard) ChangePlan(ctx context.Context, id uuid.UUID, sel planModel.Selection) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Flags.Verified || s.Step.Index() >= stepModel.StepPayment.Index() {
		return s, fmt.Errorf("%w: plan is fixed on %s", ErrWrongStep, s.Step)
	}

	info, merged, err := planService.Resolve(sel, s.Selection, s.DevAccess)
	if err != nil {
		return s, err
	}
	s.Selection = merged
	s.PlanInfo = info
	s.Data.PlanID = info.ID
	s.Data.Amount = info.Value
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	w.log.Info().
		Str("session_id", id.String()).
		Str("plan", info.ID).
		Str("periodicity", string(info.Periodicity)).
		Msg("funnel plan changed")
	return s, nil
}

/* ===================== Verification ===================== */

func (w *Wizard) sendCode(ctx context.Context, s *sessionModel.State, seq *stepService.Sequencer, value string) error {
	digits := stepService.Digits(value)
	if err := w.d.Verifier.Send(ctx, digits); err != nil {
		return err
	}
	s.Data.Phone = digits
	s.Data.PhoneFormatted = verificationService.FormatPhone(digits)
	s.Data.SMSCode = ""
	_, err := seq.Fire(stepModel.EventCodeSent)
	return err
}

func (w *Wizard) verifyCode(ctx context.Context, s *sessionModel.State, seq *stepService.Sequencer, value string) error {
	code := stepService.Digits(value)
	s.Data.SMSCode = code

	out, err := w.d.Verifier.Verify(ctx, s.Data.Phone, code)
	if err != nil {
		return err
	}
	s.Data.SMSCode = ""
	s.Flags.Verified = true

	if out.Existing != nil {
		s.UserID = out.Existing.ID
		s.UserName = out.Existing.Name
		if w.activeSubscription(ctx, s) {
			s.Flags.Role = sessionModel.RoleDonor
			s.Flags.ActiveSubscription = true
			_, err = seq.Fire(stepModel.EventAlreadyDonor)
			return err
		}
	}

	if _, err = seq.Fire(stepModel.EventVerified); err != nil {
		return err
	}
	if s.Secret != nil && s.Secret.Valid() {
		return nil
	}
	// the code is spent: keep the session on payment even if preparation fails
	if perr := w.prepare(ctx, s); perr != nil {
		s.Step = seq.Current()
		if err := w.d.Store.Save(ctx, s); err != nil {
			return err
		}
		return perr
	}
	return nil
}

func (w *Wizard) activeSubscription(ctx context.Context, s *sessionModel.State) bool {
	st, err := w.d.Donors.SubscriptionStatus(ctx, s.UserID)
	if err != nil {
		w.log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("subscription status unavailable, treating as inactive")
		return false
	}
	return st.Active
}

// ResendSMS clears the typed code and sends a new one. The step stays sms.
func (w *Wizard) ResendSMS(ctx context.Context, id uuid.UUID) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Step != stepModel.StepSMS {
		return s, fmt.Errorf("%w: %s", ErrWrongStep, s.Step)
	}
	s.Data.SMSCode = ""
	if err := w.d.Verifier.Resend(ctx, s.Data.Phone); err != nil {
		return s, err
	}
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

/* ===================== Payment ===================== */

// prepare creates the donation and stores the resolved secret.
func (w *Wizard) prepare(ctx context.Context, s *sessionModel.State) error {
	secret, err := w.d.Acquirer.Acquire(ctx, crm.CreateDonationRequest{
		UserID:      s.UserID,
		Name:        s.Data.LegalName,
		Phone:       verificationService.Normalize(s.Data.Phone),
		Plan:        s.PlanInfo.ID,
		Periodicity: string(s.PlanInfo.Periodicity),
		Amount:      s.Selection.Amount,
		Value:       s.PlanInfo.Value,
		Origin:      s.Origin,
	})
	if err != nil {
		return err
	}
	s.Secret = &secret
	s.SubscriptionID = secret.SubscriptionID
	if secret.DonationID != "" {
		s.DonationID = secret.DonationID
	}
	return nil
}

// ConfirmPayment confirms the stored secret with paymentMethodID. A declined
// payment is not an error: the session moves to failure.
func (w *Wizard) ConfirmPayment(ctx context.Context, id uuid.UUID, paymentMethodID string) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Step != stepModel.StepPayment {
		return s, fmt.Errorf("%w: %s", ErrWrongStep, s.Step)
	}
	if settled(s) {
		return s, fmt.Errorf("%w: donation already settled", ErrWrongStep)
	}
	if s.Secret == nil || !s.Secret.Valid() {
		return s, ErrNoSecret
	}

	res, err := w.d.Confirmer.Confirm(ctx, s.ID, *s.Secret, strings.TrimSpace(paymentMethodID))
	if err != nil {
		return s, err
	}

	seq := stepService.NewSequencer(s.Step)
	if !res.Succeeded {
		s.Data.PaymentFailed = true
		s.Data.PaymentSucceeded = false
		if _, err := seq.Fire(stepModel.EventDeclined); err != nil {
			return s, err
		}
	} else {
		w.afterPayment(ctx, s, res.Intent)
		if _, err := seq.Fire(stepModel.EventPaid); err != nil {
			return s, err
		}
	}

	s.Step = seq.Current()
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (w *Wizard) afterPayment(ctx context.Context, s *sessionModel.State, intent paymentModel.Intent) {
	if s.DonationID != "" {
		intentID := intent.ID
		if intentID == "" {
			intentID = s.Secret.Value.IntentID()
		}
		out, err := w.d.Donors.ConfirmDonation(ctx, s.DonationID, crm.ConfirmDonationRequest{
			SubscriptionID: s.SubscriptionID,
			IntentID:       intentID,
			Phone:          verificationService.Normalize(s.Data.Phone),
		})
		if err != nil {
			w.log.Warn().Err(err).Str("session_id", s.ID.String()).Str("donation_id", s.DonationID).Msg("donation confirmation failed")
		} else if out.UserID != "" {
			s.UserID = out.UserID
		}
	}

	s.Flags = sessionModel.Flags{
		Verified:           true,
		Role:               sessionModel.RoleDonor,
		ActiveSubscription: true,
		FirstAccess:        true,
	}
	s.Data.PaymentSucceeded = true
	s.Data.PaymentFailed = false
}

// RetryPayment returns from failure to payment, or prepares a payment whose
// secret could not be obtained earlier.
func (w *Wizard) RetryPayment(ctx context.Context, id uuid.UUID) (*sessionModel.State, error) {
	unlock := w.locks.lock(id)
	defer unlock()

	s, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if settled(s) {
		return s, fmt.Errorf("%w: donation already settled", ErrWrongStep)
	}
	switch s.Step {
	case stepModel.StepFailure:
		seq := stepService.NewSequencer(s.Step)
		if _, err := seq.Fire(stepModel.EventRetry); err != nil {
			return s, err
		}
		s.Step = seq.Current()
		s.Data.PaymentFailed = false
	case stepModel.StepPayment:
	default:
		return s, fmt.Errorf("%w: %s", ErrWrongStep, s.Step)
	}

	var perr error
	if s.Secret == nil || !s.Secret.Valid() {
		perr = w.prepare(ctx, s)
	}
	if err := w.d.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, perr
}

/* ===================== Helpers ===================== */

func progressOf(s *sessionModel.State) stepService.Progress {
	return stepService.Progress{
		Paid:        s.Data.PaymentSucceeded,
		Verified:    s.Flags.Verified,
		ActiveDonor: s.Flags.ActiveSubscription,
	}
}

// settled reports whether charging this session again would double-charge.
func settled(s *sessionModel.State) bool {
	return s.Data.PaymentSucceeded || s.Flags.ActiveSubscription
}

func (w *Wizard) donor(s *sessionModel.State) crm.DonorRef {
	return crm.DonorRef{UserID: s.UserID, Phone: verificationService.Normalize(s.Data.Phone)}
}

// Plans lists the price table.
func (w *Wizard) Plans() []planModel.PlanInfo {
	return planService.Table()
}
