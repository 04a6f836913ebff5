package claim

import (
	"github.com/smallbiznis/claimward/internal/claim/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("claim",
	fx.Provide(repository.Provide),
)
