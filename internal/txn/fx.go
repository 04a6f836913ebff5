package txn

import "go.uber.org/fx"

var Module = fx.Module("txn",
	fx.Provide(NewCoordinator),
)
