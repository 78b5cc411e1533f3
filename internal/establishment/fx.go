package establishment

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/franqio/royaltyd/internal/establishment/domain"
	"github.com/franqio/royaltyd/internal/establishment/repository"
)

var Module = fx.Module("establishment",
	fx.Provide(repository.Provide),
	fx.Invoke(logActiveGateways),
)

// logActiveGateways reports which gateways have usable credentials at startup
// so a misconfigured install is visible before the first charge.
func logActiveGateways(lc fx.Lifecycle, db *gorm.DB, repo domain.Repository, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			configs, err := repo.ListActiveGatewayConfigs(ctx, db)
			if err != nil {
				log.Warn("gateway config listing failed", zap.Error(err))
				return nil
			}
			if len(configs) == 0 {
				log.Warn("no active gateway configs, charge issuance will fail")
				return nil
			}
			names := make([]string, 0, len(configs))
			for _, cfg := range configs {
				names = append(names, cfg.Gateway)
			}
			log.Info("active gateways", zap.Strings("gateways", names))
			return nil
		},
	})
}
