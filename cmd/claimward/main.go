package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/bank"
	"github.com/smallbiznis/claimward/internal/claim"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/config"
	"github.com/smallbiznis/claimward/internal/migration"
	"github.com/smallbiznis/claimward/internal/observability"
	"github.com/smallbiznis/claimward/internal/scheduler"
	"github.com/smallbiznis/claimward/internal/settings"
	"github.com/smallbiznis/claimward/internal/transfer"
	"github.com/smallbiznis/claimward/internal/transferlog"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/internal/upkeep"
	"github.com/smallbiznis/claimward/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		txn.Module,
		bank.Module,
		claim.Module,
		transferlog.Module,
		transfer.Module,
		settings.Module,
		upkeep.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
