package charge

import (
	"go.uber.org/fx"

	"github.com/franqio/royaltyd/internal/charge/adapters"
	"github.com/franqio/royaltyd/internal/charge/adapters/altcard"
	"github.com/franqio/royaltyd/internal/charge/adapters/bankslip"
	"github.com/franqio/royaltyd/internal/charge/adapters/invoice"
	"github.com/franqio/royaltyd/internal/charge/repository"
	"github.com/franqio/royaltyd/internal/charge/service"
	"github.com/franqio/royaltyd/internal/charge/webhook"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			bankslip.NewFactory(),
			invoice.NewFactory(),
			altcard.NewFactory(),
		)
	}),
	fx.Provide(service.NewAdapterSource),
	fx.Provide(service.New),
	fx.Provide(webhook.New),
)
