package bank

import (
	"github.com/smallbiznis/claimward/internal/bank/repository"
	"github.com/smallbiznis/claimward/internal/bank/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bank",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
