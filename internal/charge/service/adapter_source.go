package service

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/franqio/royaltyd/internal/charge/adapters"
	"github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/config"
	establishmentdomain "github.com/franqio/royaltyd/internal/establishment/domain"
)

// AdapterSource builds a live adapter for a gateway from its stored
// credentials and the current per-gateway tunables.
type AdapterSource struct {
	db       *gorm.DB
	repo     establishmentdomain.Repository
	registry *adapters.Registry
	settings *config.GatewaySettingsHolder
}

type AdapterSourceParams struct {
	fx.In

	DB       *gorm.DB
	Repo     establishmentdomain.Repository
	Registry *adapters.Registry
	Settings *config.GatewaySettingsHolder
}

func NewAdapterSource(p AdapterSourceParams) *AdapterSource {
	return &AdapterSource{
		db:       p.DB,
		repo:     p.Repo,
		registry: p.Registry,
		settings: p.Settings,
	}
}

func (s *AdapterSource) AdapterFor(ctx context.Context, gateway string) (domain.GatewayAdapter, error) {
	if !domain.KnownGateway(gateway) {
		return nil, domain.ErrInvalidGateway
	}
	if !s.registry.GatewayExists(gateway) {
		return nil, domain.ErrGatewayNotFound
	}

	stored, err := s.repo.FindGatewayConfig(ctx, s.db, gateway)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, establishmentdomain.ErrGatewayConfigless
	}
	if !stored.IsActive {
		return nil, establishmentdomain.ErrGatewayNotActive
	}

	raw := map[string]any{}
	if len(stored.Config) > 0 {
		if err := json.Unmarshal(stored.Config, &raw); err != nil {
			return nil, domain.ErrInvalidConfig
		}
	}

	return s.registry.NewAdapter(gateway, domain.AdapterConfig{
		Gateway: gateway,
		Config:  raw,
		Timeout: s.settings.Get().TimeoutFor(gateway),
	})
}
