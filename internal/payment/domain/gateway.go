package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	QuoteID        snowflake.ID
	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	URL       string
	SessionID string
	ExpiresAt *time.Time
}

// Gateway creates hosted checkout sessions. Configured reports whether it
// talks to a real processor; placeholder gateways return false.
type Gateway interface {
	Provider() string
	Configured() bool
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}
