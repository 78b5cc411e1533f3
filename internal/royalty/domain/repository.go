package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, royalty *Royalty) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Royalty, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Royalty, error)
	// UpdateStatusCAS mirrors the charge ledger's conditional update so the
	// royalty row can only move out of the state the caller observed.
	UpdateStatusCAS(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next RoyaltyStatus, now time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
