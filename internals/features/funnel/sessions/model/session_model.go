package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	paymentModel "funnel_backend/internals/features/funnel/payments/model"
	planModel "funnel_backend/internals/features/funnel/plans/model"
	stepModel "funnel_backend/internals/features/funnel/steps/model"
)

// StateVersion is the schema version written by Encode.
const StateVersion = 1

const RoleDonor = "donor"

/* ===================== DonationData ===================== */

// DonationData is what the donor typed so far, plus the payment outcome flags.
type DonationData struct {
	PlanID         string  `json:"plan_id,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	LegalName      string  `json:"legal_name,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	PhoneFormatted string  `json:"phone_formatted,omitempty"`
	SMSCode        string  `json:"sms_code,omitempty"`
	Email          string  `json:"email,omitempty"`
	Cause          string  `json:"cause,omitempty"`

	PaymentSucceeded bool `json:"payment_succeeded,omitempty"`
	PaymentFailed    bool `json:"payment_failed,omitempty"`
}

// Flags are the session markers set after verification and payment.
type Flags struct {
	Verified           bool   `json:"verified,omitempty"`
	Role               string `json:"role,omitempty"`
	ActiveSubscription bool   `json:"active_subscription,omitempty"`
	FirstAccess        bool   `json:"first_access,omitempty"`
}

// Names lists the flags that are set, role included, in a fixed order.
func (f Flags) Names() []string {
	out := make([]string, 0, 4)
	if f.Verified {
		out = append(out, "verified")
	}
	if f.Role != "" {
		out = append(out, "role:"+f.Role)
	}
	if f.ActiveSubscription {
		out = append(out, "active_subscription")
	}
	if f.FirstAccess {
		out = append(out, "first_access")
	}
	return out
}

/* ===================== State ===================== */

// State is the whole funnel session. Store.Save is its only write path.
type State struct {
	Version int            `json:"version"`
	ID      uuid.UUID      `json:"id"`
	Step    stepModel.Step `json:"step"`

	Selection planModel.Selection `json:"selection"`
	PlanInfo  planModel.PlanInfo  `json:"plan_info"`
	Data      DonationData        `json:"data"`

	Secret         *paymentModel.Secret `json:"secret,omitempty"`
	UserID         string               `json:"user_id,omitempty"`
	UserName       string               `json:"user_name,omitempty"`
	DonationID     string               `json:"donation_id,omitempty"`
	SubscriptionID string               `json:"subscription_id,omitempty"`

	Flags     Flags  `json:"flags"`
	DevAccess bool   `json:"dev_access,omitempty"`
	Origin    string `json:"origin,omitempty"`
	Completed bool   `json:"completed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState starts an empty session at the first step.
func NewState(now time.Time) *State {
	return &State{
		Version:   StateVersion,
		ID:        uuid.New(),
		Step:      stepModel.StepImpact,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

/* ===================== Row ===================== */

/*
  funnel_sessions = one row per wizard session
  - state kept as versioned jsonb, step/completed/flags duplicated for ops queries
    (e.g. WHERE 'verified' = ANY(session_flags))
*/

type SessionModel struct {
	SessionID        uuid.UUID      `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	SessionVersion   int            `gorm:"column:session_version;not null" json:"session_version"`
	SessionStep      string         `gorm:"column:session_step;type:varchar(20);not null;index" json:"session_step"`
	SessionCompleted bool           `gorm:"column:session_completed;not null;default:false" json:"session_completed"`
	SessionState     datatypes.JSON `gorm:"column:session_state;type:jsonb;not null" json:"session_state"`
	SessionFlags     pq.StringArray `gorm:"column:session_flags;type:text[];not null;default:'{}'" json:"session_flags"`

	SessionCreatedAt time.Time `gorm:"column:session_created_at;autoCreateTime" json:"session_created_at"`
	SessionUpdatedAt time.Time `gorm:"column:session_updated_at;autoUpdateTime" json:"session_updated_at"`
}

func (SessionModel) TableName() string { return "funnel_sessions" }
