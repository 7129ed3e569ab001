package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
	"go.uber.org/zap"
)

const placeholderSessionPrefix = "placeholder_"

// Placeholder hands out deterministic local links. Completing one through
// the dev payments endpoint feeds a synthetic event into the reconciler.
type Placeholder struct {
	baseURL string
	log     *zap.Logger
}

func NewPlaceholder(baseURL string, log *zap.Logger) *Placeholder {
	return &Placeholder{baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (p *Placeholder) Provider() string { return domain.ProviderPlaceholder }

func (p *Placeholder) Configured() bool { return false }

func (p *Placeholder) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return domain.CheckoutSession{}, domain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return domain.CheckoutSession{}, classify(err)
	}

	quoteID := req.QuoteID.String()
	p.log.Warn("placeholder checkout link issued, no real payment will be collected",
		zap.String("quote_id", quoteID),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return domain.CheckoutSession{
		URL: fmt.Sprintf("%s/checkout/placeholder/%s?amount=%s",
			p.baseURL, quoteID, url.QueryEscape(req.Amount.StringFixed(2))),
		SessionID: fmt.Sprintf("%s%s_%d", placeholderSessionPrefix, quoteID, calculator.MinorUnits(req.Amount)),
	}, nil
}

// IsPlaceholderSession reports whether id was issued by a Placeholder.
func IsPlaceholderSession(id string) bool {
	return strings.HasPrefix(id, placeholderSessionPrefix)
}
