package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "deposit"
	PaymentTypeBalance PaymentType = "balance"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// FailureReasonSessionExpired marks a checkout abandoned past its expiry.
const FailureReasonSessionExpired = "checkout_session_expired"

const (
	ProviderStripe      = "stripe"
	ProviderPlaceholder = "placeholder"
)

// PaymentRecord tracks one processor checkout. Only the reconciler moves it
// out of pending.
type PaymentRecord struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	QuoteID             snowflake.ID    `gorm:"column:quote_id;not null;index" json:"quote_id"`
	Type                PaymentType     `gorm:"column:type;not null" json:"type"`
	Amount              decimal.Decimal `gorm:"column:amount;type:numeric(14,2)" json:"amount"`
	Currency            string          `gorm:"column:currency;not null" json:"currency"`
	Status              PaymentStatus   `gorm:"column:status;not null" json:"status"`
	Provider            string          `gorm:"column:provider;not null" json:"provider"`
	ProcessorReference  string          `gorm:"column:processor_reference;not null;index" json:"processor_reference"`
	ProcessorPaymentRef *string         `gorm:"column:processor_payment_ref" json:"processor_payment_ref,omitempty"`
	CheckoutURL         string          `gorm:"column:checkout_url" json:"checkout_url"`
	IdempotencyKey      string          `gorm:"column:idempotency_key;not null" json:"-"`
	ExpiresAt           *time.Time      `gorm:"column:expires_at" json:"expires_at,omitempty"`
	FailureReason       *string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	PaidAt              *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt           time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// Reusable reports whether a pending checkout can be handed out again.
func (r PaymentRecord) Reusable(amount decimal.Decimal, now time.Time) bool {
	if r.Status != PaymentStatusPending || r.CheckoutURL == "" {
		return false
	}
	if !r.Amount.Equal(amount) {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// EventRecord is the webhook event log. It deduplicates deliveries and keeps
// processing errors that were acknowledged to the processor.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessingError *string        `json:"processing_error,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }
