package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	eventCheckoutCompleted       = "checkout.session.completed"
	eventCheckoutAsyncSucceeded  = "checkout.session.async_payment_succeeded"
	eventCheckoutAsyncFailed     = "checkout.session.async_payment_failed"
	eventPaymentIntentSucceeded  = "payment_intent.succeeded"
	eventPaymentIntentFailed     = "payment_intent.payment_failed"
	metadataQuoteID              = "quote_id"
	checkoutPaymentStatusPaid    = "paid"
	checkoutPaymentStatusNoneDue = "no_payment_required"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderStripe
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Adapter{webhookSecret: secret, tolerance: tolerance}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (paymentdomain.Event, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	meta := paymentdomain.EventMeta{
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}
	eventType := string(event.Type)
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return paymentdomain.Unhandled{EventMeta: meta, Type: eventType}, nil
	}

	switch eventType {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded:
		session, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		// Delayed methods complete the session before funds arrive.
		if eventType == eventCheckoutCompleted && !sessionPaid(session) {
			return paymentdomain.Unhandled{EventMeta: meta, Type: eventType}, nil
		}
		return paymentdomain.CheckoutCompleted{
			EventMeta:       meta,
			SessionID:       session.ID,
			PaymentIntentID: intentID(session.PaymentIntent),
			QuoteID:         quoteRef(session.Metadata),
		}, nil
	case eventCheckoutAsyncFailed:
		session, err := decodeSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return paymentdomain.PaymentFailed{
			EventMeta:       meta,
			PaymentIntentID: intentID(session.PaymentIntent),
			QuoteID:         quoteRef(session.Metadata),
			Reason:          "async_payment_failed",
		}, nil
	case eventPaymentIntentSucceeded:
		intent, err := decodeIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return paymentdomain.PaymentSucceeded{
			EventMeta:       meta,
			PaymentIntentID: intent.ID,
			QuoteID:         quoteRef(intent.Metadata),
		}, nil
	case eventPaymentIntentFailed:
		intent, err := decodeIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return paymentdomain.PaymentFailed{
			EventMeta:       meta,
			PaymentIntentID: intent.ID,
			QuoteID:         quoteRef(intent.Metadata),
			Reason:          failureReason(intent),
		}, nil
	default:
		return paymentdomain.Unhandled{EventMeta: meta, Type: eventType}, nil
	}
}

func decodeSession(raw json.RawMessage) (*stripego.CheckoutSession, error) {
	var session stripego.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &session, nil
}

func decodeIntent(raw json.RawMessage) (*stripego.PaymentIntent, error) {
	var intent stripego.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &intent, nil
}

func sessionPaid(session *stripego.CheckoutSession) bool {
	switch string(session.PaymentStatus) {
	case checkoutPaymentStatusPaid, checkoutPaymentStatusNoneDue:
		return true
	}
	return false
}

func intentID(intent *stripego.PaymentIntent) string {
	if intent == nil {
		return ""
	}
	return intent.ID
}

func failureReason(intent *stripego.PaymentIntent) string {
	if intent.LastPaymentError != nil {
		if msg := strings.TrimSpace(intent.LastPaymentError.Msg); msg != "" {
			return msg
		}
		if code := strings.TrimSpace(string(intent.LastPaymentError.Code)); code != "" {
			return code
		}
	}
	return "payment_failed"
}

func quoteRef(metadata map[string]string) *snowflake.ID {
	raw := strings.TrimSpace(metadata[metadataQuoteID])
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}

func timestamp(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

