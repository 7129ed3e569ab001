package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QuotePolicy holds business rules that operators may change without a redeploy.
type QuotePolicy struct {
	AllowedVATRates                []float64 `mapstructure:"allowedVatRates"`
	DefaultDepositPercent          float64   `mapstructure:"defaultDepositPercent"`
	ValidityDays                   int       `mapstructure:"validityDays"`
	ManualDepositRequiresSignature bool      `mapstructure:"manualDepositRequiresSignature"`
}

func DefaultQuotePolicy() QuotePolicy {
	return QuotePolicy{
		AllowedVATRates:                []float64{0, 5.5, 10, 20},
		DefaultDepositPercent:          30,
		ValidityDays:                   30,
		ManualDepositRequiresSignature: false,
	}
}

// VATRates returns the allowed rates as exact decimals.
func (p QuotePolicy) VATRates() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(p.AllowedVATRates))
	for _, rate := range p.AllowedVATRates {
		out = append(out, decimal.NewFromFloat(rate))
	}
	return out
}

func (p QuotePolicy) DefaultDeposit() decimal.Decimal {
	return decimal.NewFromFloat(p.DefaultDepositPercent)
}

type PolicyHolder struct {
	current atomic.Value // holds QuotePolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy QuotePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()

	v.SetConfigName("quote")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/quoteflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultQuotePolicy()
	v.SetDefault("quote.allowedVatRates", defaults.AllowedVATRates)
	v.SetDefault("quote.defaultDepositPercent", defaults.DefaultDepositPercent)
	v.SetDefault("quote.validityDays", defaults.ValidityDays)
	v.SetDefault("quote.manualDepositRequiresSignature", defaults.ManualDepositRequiresSignature)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := readPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPolicy(v)
		if err != nil {
			log.Warn("quote policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid quote policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("quote policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() QuotePolicy {
	if h == nil {
		return DefaultQuotePolicy()
	}
	return h.current.Load().(QuotePolicy)
}

// readPolicy reads keys one by one so that a partial file still inherits defaults.
func readPolicy(v *viper.Viper) (QuotePolicy, error) {
	rates, err := toFloatSlice(v.Get("quote.allowedVatRates"))
	if err != nil {
		return QuotePolicy{}, fmt.Errorf("quote.allowedVatRates: %w", err)
	}
	return QuotePolicy{
		AllowedVATRates:                rates,
		DefaultDepositPercent:          v.GetFloat64("quote.defaultDepositPercent"),
		ValidityDays:                   v.GetInt("quote.validityDays"),
		ManualDepositRequiresSignature: v.GetBool("quote.manualDepositRequiresSignature"),
	}, nil
}

func toFloatSlice(raw any) ([]float64, error) {
	switch typed := raw.(type) {
	case []float64:
		return typed, nil
	case []any:
		out := make([]float64, 0, len(typed))
		for _, item := range typed {
			value, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case string:
		out := []float64{}
		for _, part := range strings.Split(typed, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			value, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
}

func toFloat(raw any) (float64, error) {
	switch typed := raw.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(typed), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

func validatePolicy(policy QuotePolicy) error {
	if len(policy.AllowedVATRates) == 0 {
		return errors.New("quote.allowedVatRates cannot be empty")
	}
	for _, rate := range policy.AllowedVATRates {
		if rate < 0 || rate > 100 {
			return fmt.Errorf("quote.allowedVatRates: %v out of range", rate)
		}
	}
	if policy.DefaultDepositPercent < 0 || policy.DefaultDepositPercent > 100 {
		return errors.New("quote.defaultDepositPercent must be within 0..100")
	}
	if d := policy.DefaultDeposit(); !d.Truncate(2).Equal(d) {
		return errors.New("quote.defaultDepositPercent allows at most 2 decimal places")
	}
	if policy.ValidityDays <= 0 {
		return errors.New("quote.validityDays must be positive")
	}
	return nil
}
