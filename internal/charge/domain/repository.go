package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	CreateCharge(ctx context.Context, db *gorm.DB, charge *Charge) error
	FindByExternalRef(ctx context.Context, db *gorm.DB, gateway, externalReference string) (*Charge, error)
	FindOpenByRoyalty(ctx context.Context, db *gorm.DB, royaltyID snowflake.ID) (*Charge, error)

	// UpdateStatusCAS performs the single conditional update that serializes
	// webhook and poll writers. Returns false when the expected status no
	// longer matches (the caller lost the race).
	UpdateStatusCAS(ctx context.Context, db *gorm.DB, chargeID snowflake.ID, expected, next ChargeStatus, raw datatypes.JSON, now time.Time) (bool, error)

	ListOpenForPolling(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Charge, error)
	ListOverdueForReview(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Charge, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, gateway, eventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, resultStatus string, processedAt time.Time) error
}
