package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Stripe struct {
	sessions   sessionCreator
	timeout    time.Duration
	successURL string
	cancelURL  string
	log        *zap.Logger
}

func NewStripe(cfg config.PaymentConfig, log *zap.Logger) *Stripe {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sc := client.New(cfg.StripeSecretKey, stripe.NewBackends(&http.Client{Timeout: timeout}))
	return &Stripe{
		sessions:   sc.CheckoutSessions,
		timeout:    timeout,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		log:        log,
	}
}

func (s *Stripe) Provider() string { return domain.ProviderStripe }

func (s *Stripe) Configured() bool { return true }

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return domain.CheckoutSession{}, domain.ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(calculator.MinorUnits(req.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.QuoteID.String()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := s.sessions.New(params)
	if err != nil {
		s.log.Warn("checkout session failed",
			zap.String("quote_id", req.QuoteID.String()),
			zap.Error(err),
		)
		return domain.CheckoutSession{}, classify(err)
	}

	out := domain.CheckoutSession{URL: session.URL, SessionID: session.ID}
	if session.ExpiresAt > 0 {
		expires := time.Unix(session.ExpiresAt, 0).UTC()
		out.ExpiresAt = &expires
	}
	return out, nil
}
