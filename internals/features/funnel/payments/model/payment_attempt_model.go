package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/*
  payment_attempts = ledger of every confirmation attempt of a funnel session
  - many rows per session (retry after failure adds a row)
  - raw provider payload kept for debugging
*/

type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

type PaymentAttemptModel struct {
	PaymentAttemptID uuid.UUID `gorm:"column:payment_attempt_id;type:uuid;primaryKey" json:"payment_attempt_id"`

	PaymentAttemptSessionID      uuid.UUID  `gorm:"column:payment_attempt_session_id;type:uuid;not null;index" json:"payment_attempt_session_id"`
	PaymentAttemptKind           IntentKind `gorm:"column:payment_attempt_kind;type:varchar(20);not null" json:"payment_attempt_kind"`
	PaymentAttemptIntentID       *string    `gorm:"column:payment_attempt_intent_id;type:varchar(120)" json:"payment_attempt_intent_id,omitempty"`
	PaymentAttemptSubscriptionID *string    `gorm:"column:payment_attempt_subscription_id;type:varchar(120)" json:"payment_attempt_subscription_id,omitempty"`

	PaymentAttemptStatus  *string        `gorm:"column:payment_attempt_status;type:varchar(40)" json:"payment_attempt_status,omitempty"`
	PaymentAttemptOutcome AttemptOutcome `gorm:"column:payment_attempt_outcome;type:varchar(20);not null" json:"payment_attempt_outcome"`
	PaymentAttemptError   *string        `gorm:"column:payment_attempt_error;type:text" json:"payment_attempt_error,omitempty"`
	PaymentAttemptPayload datatypes.JSON `gorm:"column:payment_attempt_payload;type:jsonb" json:"payment_attempt_payload,omitempty"`

	PaymentAttemptCreatedAt time.Time `gorm:"column:payment_attempt_created_at;autoCreateTime" json:"payment_attempt_created_at"`
}

func (PaymentAttemptModel) TableName() string { return "payment_attempts" }
