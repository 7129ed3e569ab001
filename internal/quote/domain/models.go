package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
)

type QuoteStatus string

const (
	StatusDraft       QuoteStatus = "draft"
	StatusSent        QuoteStatus = "sent"
	StatusSigned      QuoteStatus = "signed"
	StatusDepositPaid QuoteStatus = "deposit_paid"
	StatusCompleted   QuoteStatus = "completed"
	StatusCanceled    QuoteStatus = "canceled"
)

type DepositStatus string

const (
	DepositPending DepositStatus = "pending"
	DepositPaid    DepositStatus = "paid"
)

type DepositMethod string

const (
	DepositMethodBankTransfer DepositMethod = "bank_transfer"
	DepositMethodCash         DepositMethod = "cash"
	DepositMethodCheck        DepositMethod = "check"
	DepositMethodOther        DepositMethod = "other"
)

func (m DepositMethod) Valid() bool {
	switch m {
	case DepositMethodBankTransfer, DepositMethodCash, DepositMethodCheck, DepositMethodOther:
		return true
	default:
		return false
	}
}

type Quote struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID `gorm:"column:owner_id;not null;index" json:"owner_id"`
	ClientID    snowflake.ID `gorm:"column:client_id;not null" json:"client_id"`
	Number      string       `gorm:"column:number;not null" json:"number"`
	Title       string       `gorm:"column:title" json:"title"`
	ClientName  string       `gorm:"column:client_name" json:"client_name"`
	ClientEmail string       `gorm:"column:client_email" json:"client_email"`
	Currency    string       `gorm:"column:currency;not null" json:"currency"`
	Lines       []QuoteLine  `gorm:"-" json:"lines"`
	Status      QuoteStatus  `gorm:"column:status;not null" json:"status"`

	TotalHT  decimal.Decimal `gorm:"column:total_ht;type:numeric(14,2)" json:"total_ht"`
	TotalVAT decimal.Decimal `gorm:"column:total_vat;type:numeric(14,2)" json:"total_vat"`
	TotalTTC decimal.Decimal `gorm:"column:total_ttc;type:numeric(14,2)" json:"total_ttc"`

	DepositPercent decimal.Decimal `gorm:"column:deposit_percent;type:numeric(5,2)" json:"deposit_percent"`
	DepositAmount  decimal.Decimal `gorm:"column:deposit_amount;type:numeric(14,2)" json:"deposit_amount"`
	DepositStatus  DepositStatus   `gorm:"column:deposit_status;not null" json:"deposit_status"`
	DepositPaidAt  *time.Time      `gorm:"column:deposit_paid_at" json:"deposit_paid_at,omitempty"`
	DepositMethod  *DepositMethod  `gorm:"column:deposit_method" json:"deposit_method,omitempty"`

	SignatureRef   *string    `gorm:"column:signature_ref" json:"signature_ref,omitempty"`
	SignedAt       *time.Time `gorm:"column:signed_at" json:"signed_at,omitempty"`
	PaymentLinkURL *string    `gorm:"column:payment_link_url" json:"payment_link_url,omitempty"`
	ExpiresAt      time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`

	SentAt      *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CanceledAt  *time.Time `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }

func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

type QuoteLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	QuoteID     snowflake.ID    `gorm:"column:quote_id;not null;index" json:"quote_id"`
	Position    int             `gorm:"column:position;not null" json:"position"`
	Description string          `gorm:"column:description;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(14,4)" json:"quantity"`
	UnitPriceHT decimal.Decimal `gorm:"column:unit_price_ht;type:numeric(14,4)" json:"unit_price_ht"`
	VATRate     decimal.Decimal `gorm:"column:vat_rate;type:numeric(5,2)" json:"vat_rate"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null" json:"created_at"`
}

func (QuoteLine) TableName() string { return "quote_lines" }

func (l QuoteLine) Amounts() calculator.Line {
	return calculator.Line{
		Quantity:    l.Quantity,
		UnitPriceHT: l.UnitPriceHT,
		VATRate:     l.VATRate,
	}
}

func CalculatorLines(lines []QuoteLine) []calculator.Line {
	out := make([]calculator.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Amounts())
	}
	return out
}
