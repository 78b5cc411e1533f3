package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	EstablishmentID snowflake.ID `json:"establishment_id,string"`
	PeriodStart     time.Time    `json:"period_start"`
	PeriodEnd       time.Time    `json:"period_end"`
	GrossRevenue    int64        `json:"gross_revenue"`
	DueDate         time.Time    `json:"due_date"`
}

type ListRequest struct {
	EstablishmentID snowflake.ID
	Status          RoyaltyStatus
	// PeriodFrom/PeriodTo bound PeriodStart; zero values mean unbounded.
	PeriodFrom time.Time
	PeriodTo   time.Time
	Limit      int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Royalty, error)
	Get(ctx context.Context, id snowflake.ID) (*Royalty, error)
	List(ctx context.Context, req ListRequest) ([]Royalty, error)
	// Delete rejects royalties that already reached paid.
	Delete(ctx context.Context, id snowflake.ID) error
}
