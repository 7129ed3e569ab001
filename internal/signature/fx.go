package signature

import (
	"github.com/smallbiznis/quoteflow/internal/signature/repository"
	"github.com/smallbiznis/quoteflow/internal/signature/service"
	"go.uber.org/fx"
)

var Module = fx.Module("signature.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
