// Package gateway creates hosted checkout sessions with the payment processor.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/payment/domain"
	"go.uber.org/zap"
)

// New picks the stripe gateway when a secret key is configured. Without one
// a placeholder is used, except in production where it is refused.
func New(cfg config.Config, log *zap.Logger) (domain.Gateway, error) {
	log = log.Named("payment.gateway")
	if cfg.Payment.StripeSecretKey != "" {
		return NewStripe(cfg.Payment, log), nil
	}
	if cfg.IsProduction() {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is required in production", domain.ErrGatewayNotConfigured)
	}
	log.Warn("no processor key configured, using placeholder checkout links")
	return NewPlaceholder(cfg.PublicBaseURL, log), nil
}

// classify maps transport failures onto the gateway sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrGateway, err)
}
