package payment

import (
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/payment/adapters"
	"github.com/smallbiznis/quoteflow/internal/payment/adapters/stripe"
	"github.com/smallbiznis/quoteflow/internal/payment/gateway"
	"github.com/smallbiznis/quoteflow/internal/payment/repository"
	"github.com/smallbiznis/quoteflow/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(cfg.Payment, stripe.NewFactory())
	}),
	fx.Provide(gateway.New),
	fx.Provide(webhook.NewService),
)
