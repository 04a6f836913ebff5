package transfer

import (
	"github.com/smallbiznis/claimward/internal/transfer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer",
	fx.Provide(service.NewService),
)
