package royalty

import (
	"github.com/franqio/royaltyd/internal/royalty/repository"
	"github.com/franqio/royaltyd/internal/royalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("royalty.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
