package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/payment/domain"
)

// Registry hands out webhook adapters already bound to the signing secret
// configured for their provider.
type Registry struct {
	factories map[string]domain.AdapterFactory
	secrets   map[string]string
	tolerance time.Duration
}

func NewRegistry(cfg config.PaymentConfig, factories ...domain.AdapterFactory) *Registry {
	r := &Registry{
		factories: make(map[string]domain.AdapterFactory, len(factories)),
		secrets: map[string]string{
			domain.ProviderStripe: strings.TrimSpace(cfg.StripeWebhookSecret),
		},
		tolerance: cfg.WebhookTolerance,
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := providerKey(factory.Provider()); name != "" {
			r.factories[name] = factory
		}
	}
	return r
}

// Supports reports whether deliveries from provider can be verified at all.
func (r *Registry) Supports(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[providerKey(provider)]
	return ok
}

// Adapter fails with ErrProviderNotFound for unknown providers and with the
// factory's error when the provider has no usable secret.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := providerKey(provider)
	factory, ok := r.factories[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	adapter, err := factory.NewAdapter(domain.AdapterConfig{
		Provider:      name,
		WebhookSecret: r.secrets[name],
		Tolerance:     r.tolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("%s webhook adapter: %w", name, err)
	}
	return adapter, nil
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
