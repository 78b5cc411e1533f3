package domain

import (
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RoyaltyStatus string

const (
	RoyaltyStatusPending         RoyaltyStatus = "pending"
	RoyaltyStatusAwaitingPayment RoyaltyStatus = "awaiting_payment"
	RoyaltyStatusChargeIssued    RoyaltyStatus = "charge_issued"
	RoyaltyStatusPaid            RoyaltyStatus = "paid"
	RoyaltyStatusCanceled        RoyaltyStatus = "canceled"
)

// Royalty is a billing obligation for one establishment over [PeriodStart, PeriodEnd).
// Amounts are in minor units. RoyaltyAmount is computed once at creation and
// immutable after a charge exists.
type Royalty struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	EstablishmentID snowflake.ID  `json:"establishment_id" gorm:"not null;index"`
	PeriodStart     time.Time     `json:"period_start" gorm:"not null"`
	PeriodEnd       time.Time     `json:"period_end" gorm:"not null"`
	GrossRevenue    int64         `json:"gross_revenue" gorm:"not null"`
	RoyaltyPercent  float64       `json:"royalty_percent" gorm:"not null"`
	RoyaltyAmount   int64         `json:"royalty_amount" gorm:"not null"`
	DueDate         time.Time     `json:"due_date" gorm:"not null"`
	Status          RoyaltyStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"not null"`
}

func (Royalty) TableName() string { return "royalties" }

// ComputeAmount derives the royalty amount from reported revenue. Rounds half
// away from zero to the nearest minor unit.
func ComputeAmount(grossRevenue int64, percent float64) int64 {
	return int64(math.Round(float64(grossRevenue) * percent / 100))
}

var (
	ErrNotFound       = errors.New("royalty_not_found")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrInvalidRevenue = errors.New("invalid_revenue")
	ErrRoyaltyPaid    = errors.New("royalty_paid")
)
