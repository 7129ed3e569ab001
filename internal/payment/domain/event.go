package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	EventKindCheckoutCompleted = "checkout_completed"
	EventKindPaymentSucceeded  = "payment_succeeded"
	EventKindPaymentFailed     = "payment_failed"
	EventKindUnhandled         = "unhandled"
)

// Event is the closed set of notifications the reconciler understands.
// Adapters translate processor payloads into one of these variants.
type Event interface {
	Kind() string
	Meta() EventMeta
	sealed()
}

type EventMeta struct {
	Provider        string
	ProviderEventID string
	OccurredAt      time.Time
	RawPayload      []byte
}

type CheckoutCompleted struct {
	EventMeta
	SessionID       string
	PaymentIntentID string
	QuoteID         *snowflake.ID
}

type PaymentSucceeded struct {
	EventMeta
	PaymentIntentID string
	QuoteID         *snowflake.ID
}

type PaymentFailed struct {
	EventMeta
	PaymentIntentID string
	QuoteID         *snowflake.ID
	Reason          string
}

type Unhandled struct {
	EventMeta
	Type string
}

func (CheckoutCompleted) Kind() string { return EventKindCheckoutCompleted }
func (PaymentSucceeded) Kind() string  { return EventKindPaymentSucceeded }
func (PaymentFailed) Kind() string     { return EventKindPaymentFailed }
func (Unhandled) Kind() string         { return EventKindUnhandled }

func (e CheckoutCompleted) Meta() EventMeta { return e.EventMeta }
func (e PaymentSucceeded) Meta() EventMeta  { return e.EventMeta }
func (e PaymentFailed) Meta() EventMeta     { return e.EventMeta }
func (e Unhandled) Meta() EventMeta         { return e.EventMeta }

func (CheckoutCompleted) sealed() {}
func (PaymentSucceeded) sealed()  {}
func (PaymentFailed) sealed()     {}
func (Unhandled) sealed()         {}
