package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/communityhq/billingcore/internal/cache"
	"github.com/communityhq/billingcore/internal/clock"
	"github.com/communityhq/billingcore/internal/config"
	"github.com/communityhq/billingcore/internal/gateway"
	"github.com/communityhq/billingcore/internal/logger"
	"github.com/communityhq/billingcore/internal/migration"
	"github.com/communityhq/billingcore/internal/notification"
	"github.com/communityhq/billingcore/internal/observability"
	"github.com/communityhq/billingcore/internal/observability/tracing"
	"github.com/communityhq/billingcore/internal/scheduler"
	"github.com/communityhq/billingcore/internal/server"
	"github.com/communityhq/billingcore/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		tracing.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		gateway.Module,
		notification.Module,
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
