package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/aging"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/fee"
	"github.com/smallbiznis/bursar/internal/financemetrics"
	"github.com/smallbiznis/bursar/internal/invoice"
	"github.com/smallbiznis/bursar/internal/ledger"
	"github.com/smallbiznis/bursar/internal/migration"
	"github.com/smallbiznis/bursar/internal/mobilemoney"
	"github.com/smallbiznis/bursar/internal/observability"
	"github.com/smallbiznis/bursar/internal/payment"
	"github.com/smallbiznis/bursar/internal/ratelimit"
	"github.com/smallbiznis/bursar/internal/scheduler"
	"github.com/smallbiznis/bursar/internal/seed"
	"github.com/smallbiznis/bursar/internal/server"
	"github.com/smallbiznis/bursar/internal/student"
	"github.com/smallbiznis/bursar/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Billing domains
		student.Module,
		fee.Module,
		ledger.Module,
		invoice.Module,
		payment.Module,
		mobilemoney.Module,
		aging.Module,

		// Runners
		fx.Invoke(seed.Register),
		scheduler.Module,
		financemetrics.Module,
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
