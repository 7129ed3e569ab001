package deposit

import (
	"github.com/smallbiznis/quoteflow/internal/deposit/domain"
	"github.com/smallbiznis/quoteflow/internal/deposit/service"
	"github.com/smallbiznis/quoteflow/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("deposit.service",
	fx.Provide(func(guard *ratelimit.CheckoutGuard) domain.CheckoutGuard { return guard }),
	fx.Provide(service.New),
)
