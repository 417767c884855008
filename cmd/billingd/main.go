package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/migration"
	"github.com/smallbiznis/billing/internal/observability"
	"github.com/smallbiznis/billing/internal/scheduler"
	"github.com/smallbiznis/billing/internal/server"
	"github.com/smallbiznis/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
