package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
)

// Service settles quote deposits, either on the owner's word or through a
// processor checkout that the webhook reconciler later confirms.
type Service interface {
	MarkDepositPaid(ctx context.Context, req MarkDepositPaidRequest) (quotedomain.Quote, error)
	RequestCheckout(ctx context.Context, quoteID string) (CheckoutResponse, error)
	ListPayments(ctx context.Context, quoteID string) ([]paymentdomain.PaymentRecord, error)
}

type MarkDepositPaidRequest struct {
	QuoteID string
	Method  string
}

type CheckoutResponse struct {
	PaymentURL string `json:"payment_url"`
	SessionID  string `json:"session_id"`
	Provider   string `json:"provider"`
	Reused     bool   `json:"reused"`
}

// CheckoutGuard serializes checkout creation per quote and throttles owners.
type CheckoutGuard interface {
	AllowOwner(ctx context.Context, ownerID string) (bool, error)
	TryLockQuote(ctx context.Context, quoteID string) (token string, ok bool, err error)
	ReleaseQuote(ctx context.Context, quoteID, token string) error
}

var (
	ErrCheckoutInProgress  = errors.New("checkout_in_progress")
	ErrCheckoutRateLimited = errors.New("checkout_rate_limited")
)
