package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/franqio/royaltyd/internal/establishment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Establishment, error) {
	var item domain.Establishment
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, document, email, address, gateway, active, created_at, updated_at
		 FROM establishments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindGatewayConfig(ctx context.Context, db *gorm.DB, gateway string) (*domain.GatewayConfig, error) {
	var item domain.GatewayConfig
	err := db.WithContext(ctx).Raw(
		`SELECT gateway, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE gateway = ?
		 LIMIT 1`,
		gateway,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Gateway == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActiveGatewayConfigs(ctx context.Context, db *gorm.DB) ([]domain.GatewayConfig, error) {
	var items []domain.GatewayConfig
	err := db.WithContext(ctx).Raw(
		`SELECT gateway, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE is_active = TRUE
		 ORDER BY gateway`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
