package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"funnel_backend/internals/clients/crm"
	stepService "funnel_backend/internals/features/funnel/steps/service"
)

var (
	ErrPhoneTooShort          = errors.New("verification: phone number is incomplete")
	ErrPhoneAlreadyRegistered = errors.New("verification: phone already registered")
	ErrSendFailed             = errors.New("verification: could not send code")
	ErrInvalidCode            = errors.New("verification: code must have 6 digits")
	ErrCodeRejected           = errors.New("verification: code rejected")
	ErrVerificationFailed     = errors.New("verification: unexpected verification response")
)

// Backend is the slice of the CRM the verification flow needs.
type Backend interface {
	SendSMS(ctx context.Context, phone string) error
	VerifySMS(ctx context.Context, phone, code string) (crm.VerifySMSResponse, error)
}

// Outcome of a successful verification. Exactly one of Existing / NewUser is set.
type Outcome struct {
	Existing *crm.User
	NewUser  bool
}

type Service struct {
	backend Backend
	log     zerolog.Logger
}

func New(backend Backend, log zerolog.Logger) *Service {
	return &Service{backend: backend, log: log.With().Str("component", "verification").Logger()}
}

// Send requests an OTP for a national phone number.
func (s *Service) Send(ctx context.Context, phone string) error {
	normalized := Normalize(phone)
	if len(normalized) < minNormalized {
		return ErrPhoneTooShort
	}

	err := s.backend.SendSMS(ctx, normalized)
	if err == nil {
		return nil
	}
	if crm.StatusOf(err) == http.StatusConflict {
		return ErrPhoneAlreadyRegistered
	}
	s.log.Error().Err(err).Str("phone", mask(normalized)).Msg("send sms failed")
	return fmt.Errorf("%w: %v", ErrSendFailed, err)
}

// Verify checks a 6-digit code. A body with a user means an existing donor;
// a bare success flag means a new donor whose account is created after payment.
func (s *Service) Verify(ctx context.Context, phone, code string) (Outcome, error) {
	code = stepService.Digits(code)
	if len(code) != 6 {
		return Outcome{}, ErrInvalidCode
	}
	normalized := Normalize(phone)

	res, err := s.backend.VerifySMS(ctx, normalized, code)
	if err != nil {
		if st := crm.StatusOf(err); st >= 400 && st < 500 {
			return Outcome{}, fmt.Errorf("%w: %v", ErrCodeRejected, err)
		}
		if errors.Is(err, crm.ErrMalformedResponse) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return Outcome{}, err
	}

	switch {
	case res.User != nil && res.User.ID != "":
		return Outcome{Existing: res.User}, nil
	case res.User == nil && res.Success != nil && *res.Success:
		return Outcome{NewUser: true}, nil
	default:
		s.log.Error().Str("phone", mask(normalized)).Msg("unrecognized verify response")
		return Outcome{}, ErrVerificationFailed
	}
}

// Resend repeats Send; the caller clears any code typed so far.
func (s *Service) Resend(ctx context.Context, phone string) error {
	return s.Send(ctx, phone)
}

func mask(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
