package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Establishment, error)
	FindGatewayConfig(ctx context.Context, db *gorm.DB, gateway string) (*GatewayConfig, error)
	ListActiveGatewayConfigs(ctx context.Context, db *gorm.DB) ([]GatewayConfig, error)
}
