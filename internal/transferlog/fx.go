package transferlog

import (
	"github.com/smallbiznis/claimward/internal/transferlog/repository"
	"github.com/smallbiznis/claimward/internal/transferlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transferlog",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
