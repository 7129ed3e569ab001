package domain

import (
	"context"
	"net/http"
	"time"
)

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
	Tolerance     time.Duration
}

// PaymentAdapter verifies and decodes webhook deliveries of one provider.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (Event, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
