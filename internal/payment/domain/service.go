package domain

import (
	"context"
	"errors"
	"net/http"
)

// Reconciler ingests processor notifications.
type Reconciler interface {
	// IngestWebhook verifies and applies one delivery. Only verification
	// failures are returned; later failures are recorded and acknowledged.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
	// Reconcile applies an already trusted event.
	Reconcile(ctx context.Context, event Event) error
	// Replay re-applies a stored event that was verified on arrival but
	// never processed.
	Replay(ctx context.Context, record EventRecord) error
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")

	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrGateway              = errors.New("payment_gateway_error")
	ErrGatewayTimeout       = errors.New("payment_gateway_timeout")
	ErrGatewayNotConfigured = errors.New("payment_gateway_not_configured")
)
