package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/franqio/royaltyd/internal/payable/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, payable *domain.Payable) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payables (
			id, royalty_id, charge_id, amount, due_date, status, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payable.ID,
		payable.RoyaltyID,
		payable.ChargeID,
		payable.Amount,
		payable.DueDate,
		payable.Status,
		payable.PaidAt,
		payable.CreatedAt,
		payable.UpdatedAt,
	).Error
}

func (r *repo) FindByCharge(ctx context.Context, db *gorm.DB, chargeID snowflake.ID) (*domain.Payable, error) {
	var item domain.Payable
	err := db.WithContext(ctx).Raw(
		`SELECT id, royalty_id, charge_id, amount, due_date, status, paid_at, created_at, updated_at
		 FROM payables
		 WHERE charge_id = ?
		 LIMIT 1`,
		chargeID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, chargeID snowflake.ID, paidAt time.Time, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payables
		 SET status = ?, paid_at = ?, amount = ?, updated_at = ?
		 WHERE charge_id = ? AND status = ?`,
		domain.PayableStatusPaid,
		paidAt,
		amount,
		paidAt,
		chargeID,
		domain.PayableStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
