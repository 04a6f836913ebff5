package upkeep

import "go.uber.org/fx"

var Module = fx.Module("upkeep",
	fx.Provide(NewEngine),
)
