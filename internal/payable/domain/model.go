package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PayableStatus string

const (
	PayableStatusOpen     PayableStatus = "open"
	PayableStatusPaid     PayableStatus = "paid"
	PayableStatusCanceled PayableStatus = "canceled"
)

// Payable is the accounting record ("contas a pagar") mirrored from a charge.
// Owned by the accounting subsystem; this engine only creates it on issuance
// and settles it on confirmed payment.
type Payable struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	RoyaltyID snowflake.ID  `json:"royalty_id" gorm:"not null;index"`
	ChargeID  snowflake.ID  `json:"charge_id" gorm:"not null;index"`
	Amount    int64         `json:"amount" gorm:"not null"`
	DueDate   time.Time     `json:"due_date" gorm:"not null"`
	Status    PayableStatus `json:"status" gorm:"type:text;not null"`
	PaidAt    *time.Time    `json:"paid_at"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"not null"`
}

func (Payable) TableName() string { return "payables" }

var ErrNotFound = errors.New("payable_not_found")

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, payable *Payable) error
	FindByCharge(ctx context.Context, db *gorm.DB, chargeID snowflake.ID) (*Payable, error)
	MarkPaid(ctx context.Context, db *gorm.DB, chargeID snowflake.ID, paidAt time.Time, amount int64) (bool, error)
}
