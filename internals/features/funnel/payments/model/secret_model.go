package model

import "strings"

// SecretDelimiter marks a provider client secret ("pi_123_secret_abc").
const SecretDelimiter = "_secret_"

// ClientSecret is an opaque provider secret. It is usable only when Valid.
type ClientSecret string

// Valid reports whether the secret carries the provider delimiter. An empty
// value or a bare subscription id is never valid.
func (s ClientSecret) Valid() bool {
	return strings.Contains(string(s), SecretDelimiter)
}

// IntentID is the provider object id the secret belongs to, or "" if invalid.
func (s ClientSecret) IntentID() string {
	i := strings.Index(string(s), SecretDelimiter)
	if i <= 0 {
		return ""
	}
	return string(s)[:i]
}

// SecretFrom turns a nullable backend field into a ClientSecret.
func SecretFrom(p *string) ClientSecret {
	if p == nil {
		return ""
	}
	return ClientSecret(strings.TrimSpace(*p))
}

type IntentKind string

const (
	KindPaymentIntent IntentKind = "payment_intent"
	KindSetupIntent   IntentKind = "setup_intent"
)

// KindFrom resolves the confirmation path from the backend flags.
func KindFrom(secretType string, useSetupIntent bool) IntentKind {
	if useSetupIntent || strings.EqualFold(strings.TrimSpace(secretType), string(KindSetupIntent)) {
		return KindSetupIntent
	}
	return KindPaymentIntent
}

// Secret is resolved once at acquisition and threaded through confirmation.
type Secret struct {
	Kind           IntentKind   `json:"kind"`
	Value          ClientSecret `json:"value"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	DonationID     string       `json:"donation_id,omitempty"`
}

func (s Secret) Valid() bool { return s.Value.Valid() }

/* ===================== Intent ===================== */

// Provider intent statuses the flow cares about.
const (
	StatusSucceeded      = "succeeded"
	StatusProcessing     = "processing"
	StatusRequiresAction = "requires_action"
)

// Intent is what a provider confirm call resolves with.
type Intent struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}
