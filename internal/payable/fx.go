package payable

import (
	"github.com/franqio/royaltyd/internal/payable/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payable",
	fx.Provide(repository.Provide),
)
