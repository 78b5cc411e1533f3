package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/franqio/royaltyd/internal/charge"
	"github.com/franqio/royaltyd/internal/clock"
	"github.com/franqio/royaltyd/internal/config"
	"github.com/franqio/royaltyd/internal/establishment"
	"github.com/franqio/royaltyd/internal/metrics"
	"github.com/franqio/royaltyd/internal/migration"
	"github.com/franqio/royaltyd/internal/notify"
	"github.com/franqio/royaltyd/internal/payable"
	"github.com/franqio/royaltyd/internal/reconciler"
	"github.com/franqio/royaltyd/internal/royalty"
	"github.com/franqio/royaltyd/internal/server"
	"github.com/franqio/royaltyd/pkg/db"
	"github.com/franqio/royaltyd/pkg/log"
)

// Monolith mode: API, webhooks and the background sweep in one process.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		establishment.Module,
		royalty.Module,
		payable.Module,
		notify.Module,
		charge.Module,
		reconciler.RunModule,
		server.Module,
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
