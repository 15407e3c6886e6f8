package crm

import (
	"context"
	"net/http"
)

/* ===================== SMS ===================== */

type SendSMSRequest struct {
	Phone string `json:"phone"`
}

// SendSMS requests an OTP. A 2xx answer or an explicit {"success": true}
// body both count as success.
func (c *Client) SendSMS(ctx context.Context, phone string) error {
	const path = "/sms/send"
	r, err := c.do(ctx, http.MethodPost, path, SendSMSRequest{Phone: phone})
	if err != nil {
		return err
	}
	if !r.flaggedOK() {
		return c.statusErr(http.MethodPost, path, r)
	}
	return nil
}

type VerifySMSRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

// VerifySMSResponse is returned as-is; callers decide what the shape means.
type VerifySMSResponse struct {
	Success *bool `json:"success"`
	User    *User `json:"user"`
}

func (c *Client) VerifySMS(ctx context.Context, phone, code string) (VerifySMSResponse, error) {
	var out VerifySMSResponse
	err := c.call(ctx, http.MethodPost, "/sms/verify", VerifySMSRequest{Phone: phone, Code: code}, &out)
	return out, err
}

/* ===================== Subscriptions ===================== */

type SubscriptionStatus struct {
	Active         bool   `json:"active"`
	Status         string `json:"status,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

func (c *Client) SubscriptionStatus(ctx context.Context, userID string) (SubscriptionStatus, error) {
	var out SubscriptionStatus
	err := c.call(ctx, http.MethodGet, "/users/"+escape(userID)+"/subscription", nil, &out)
	return out, err
}

type CreateDonationRequest struct {
	UserID      string  `json:"user_id,omitempty"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	Plan        string  `json:"plan"`
	Periodicity string  `json:"periodicity"`
	Amount      float64 `json:"amount,omitempty"`
	Value       float64 `json:"value"`
	Origin      string  `json:"origin,omitempty"`
}

// CreateDonationResponse may carry the secret directly, or only a
// subscription id when the secret is not ready yet.
type CreateDonationResponse struct {
	DonationID     string  `json:"donation_id"`
	SubscriptionID string  `json:"subscription_id"`
	ClientSecret   *string `json:"client_secret"`
	SecretType     string  `json:"secret_type"`
	UseSetupIntent bool    `json:"use_setup_intent"`
}

func (c *Client) CreateDonation(ctx context.Context, req CreateDonationRequest) (CreateDonationResponse, error) {
	var out CreateDonationResponse
	err := c.call(ctx, http.MethodPost, "/donations", req, &out)
	return out, err
}

type ClientSecretResponse struct {
	ClientSecret   *string `json:"client_secret"`
	SecretType     string  `json:"secret_type"`
	UseSetupIntent bool    `json:"use_setup_intent"`
}

func (c *Client) ClientSecret(ctx context.Context, subscriptionID string) (ClientSecretResponse, error) {
	var out ClientSecretResponse
	err := c.call(ctx, http.MethodGet, "/subscriptions/"+escape(subscriptionID)+"/client-secret", nil, &out)
	return out, err
}

type PayInvoiceRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func (c *Client) PayInvoice(ctx context.Context, subscriptionID, paymentMethodID string) error {
	return c.call(ctx, http.MethodPost, "/subscriptions/"+escape(subscriptionID)+"/pay-invoice",
		PayInvoiceRequest{PaymentMethodID: paymentMethodID}, nil)
}

type ConfirmDonationRequest struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	IntentID       string `json:"intent_id,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

type ConfirmDonationResponse struct {
	UserID string `json:"user_id,omitempty"`
}

func (c *Client) ConfirmDonation(ctx context.Context, donationID string, req ConfirmDonationRequest) (ConfirmDonationResponse, error) {
	var out ConfirmDonationResponse
	r, err := c.do(ctx, http.MethodPost, "/donations/"+escape(donationID)+"/confirm", req)
	if err != nil {
		return out, err
	}
	if !r.ok() {
		return out, c.statusErr(http.MethodPost, "/donations/"+donationID+"/confirm", r)
	}
	// body is optional here
	if len(r.body) > 0 {
		_ = c.decode(r, &out)
	}
	return out, nil
}

/* ===================== Donor profile ===================== */

// DonorRef identifies a donor; UserID may be empty for accounts still being created.
type DonorRef struct {
	UserID string `json:"user_id,omitempty"`
	Phone  string `json:"phone"`
}

type UpdateEmailRequest struct {
	DonorRef
	Email string `json:"email"`
}

func (c *Client) UpdateEmail(ctx context.Context, donor DonorRef, email string) error {
	return c.call(ctx, http.MethodPost, "/donors/email", UpdateEmailRequest{DonorRef: donor, Email: email}, nil)
}

type RecordCauseRequest struct {
	DonorRef
	Cause string `json:"cause"`
}

func (c *Client) RecordCause(ctx context.Context, donor DonorRef, cause string) error {
	return c.call(ctx, http.MethodPost, "/donors/cause", RecordCauseRequest{DonorRef: donor, Cause: cause}, nil)
}
