package config

import "testing"

func TestValidatePolicy(t *testing.T) {
	if err := validatePolicy(DefaultQuotePolicy()); err != nil {
		t.Fatalf("expected default policy to be valid, got %v", err)
	}

	cases := map[string]QuotePolicy{
		"empty_rates":      {DefaultDepositPercent: 30, ValidityDays: 30},
		"negative_rate":    {AllowedVATRates: []float64{-1}, DefaultDepositPercent: 30, ValidityDays: 30},
		"deposit_too_high": {AllowedVATRates: []float64{20}, DefaultDepositPercent: 120, ValidityDays: 30},
		"zero_validity":    {AllowedVATRates: []float64{20}, DefaultDepositPercent: 30},
		"deposit_scale":    {AllowedVATRates: []float64{20}, DefaultDepositPercent: 33.333, ValidityDays: 30},
	}
	for name, policy := range cases {
		t.Run(name, func(t *testing.T) {
			if err := validatePolicy(policy); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNilPolicyHolderFallsBackToDefaults(t *testing.T) {
	var holder *PolicyHolder
	got := holder.Get()
	if got.ValidityDays != DefaultQuotePolicy().ValidityDays {
		t.Fatalf("expected default validity days, got %d", got.ValidityDays)
	}
}

func TestLoadReadsPaymentSettings(t *testing.T) {
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("STRIPE_SECRET_KEY", " sk_test_123 ")
	t.Setenv("PAYMENT_GATEWAY_TIMEOUT", "3s")
	t.Setenv("PUBLIC_BASE_URL", "https://quotes.example.com/")

	cfg := Load()
	if !cfg.IsProduction() {
		t.Fatalf("expected production environment, got %q", cfg.Environment)
	}
	if cfg.Payment.StripeSecretKey != "sk_test_123" {
		t.Fatalf("expected trimmed secret key, got %q", cfg.Payment.StripeSecretKey)
	}
	if cfg.Payment.GatewayTimeout.String() != "3s" {
		t.Fatalf("expected 3s timeout, got %s", cfg.Payment.GatewayTimeout)
	}
	if cfg.Payment.SuccessURL != "https://quotes.example.com/checkout/success" {
		t.Fatalf("unexpected success url %q", cfg.Payment.SuccessURL)
	}
}

func TestToFloatSliceAcceptsEnvList(t *testing.T) {
	got, err := toFloatSlice("0, 5.5,10 ,20")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []float64{0, 5.5, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("expected %d rates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rate %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if _, err := toFloatSlice([]any{"abc"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPolicyVATRatesAreExact(t *testing.T) {
	rates := DefaultQuotePolicy().VATRates()
	if len(rates) != 4 {
		t.Fatalf("expected 4 rates, got %d", len(rates))
	}
	if rates[1].String() != "5.5" {
		t.Fatalf("expected 5.5, got %s", rates[1])
	}
	if DefaultQuotePolicy().DefaultDeposit().String() != "30" {
		t.Fatalf("unexpected default deposit")
	}
}
