package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Establishment is the payer. Gateway selects which payment provider issues
// its royalty charges; credentials live in GatewayConfig rows.
type Establishment struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Document  string       `json:"document" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text"`
	Address   string       `json:"address" gorm:"type:text"`
	Gateway   string       `json:"gateway" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Establishment) TableName() string { return "establishments" }

// GatewayConfig holds one gateway's credentials and endpoints as opaque JSON
// (api_key, webhook_secret, base_url).
type GatewayConfig struct {
	Gateway   string         `json:"gateway" gorm:"primaryKey;type:text"`
	Config    datatypes.JSON `json:"config" gorm:"type:jsonb;not null"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (GatewayConfig) TableName() string { return "gateway_configs" }

var (
	ErrNotFound          = errors.New("establishment_not_found")
	ErrGatewayNotActive  = errors.New("gateway_not_active")
	ErrGatewayConfigless = errors.New("gateway_not_configured")
)
