package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/franqio/royaltyd/internal/royalty/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, royalty *domain.Royalty) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO royalties (
			id, establishment_id, period_start, period_end, gross_revenue,
			royalty_percent, royalty_amount, due_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		royalty.ID,
		royalty.EstablishmentID,
		royalty.PeriodStart,
		royalty.PeriodEnd,
		royalty.GrossRevenue,
		royalty.RoyaltyPercent,
		royalty.RoyaltyAmount,
		royalty.DueDate,
		royalty.Status,
		royalty.CreatedAt,
		royalty.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Royalty, error) {
	var item domain.Royalty
	err := db.WithContext(ctx).Raw(
		`SELECT id, establishment_id, period_start, period_end, gross_revenue,
			royalty_percent, royalty_amount, due_date, status, created_at, updated_at
		 FROM royalties
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

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Royalty, error) {
	query := `SELECT id, establishment_id, period_start, period_end, gross_revenue,
			royalty_percent, royalty_amount, due_date, status, created_at, updated_at
		 FROM royalties`
	conditions := []string{}
	args := []any{}
	if req.EstablishmentID != 0 {
		conditions = append(conditions, "establishment_id = ?")
		args = append(args, req.EstablishmentID)
	}
	if req.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, req.Status)
	}
	if !req.PeriodFrom.IsZero() {
		conditions = append(conditions, "period_start >= ?")
		args = append(args, req.PeriodFrom)
	}
	if !req.PeriodTo.IsZero() {
		conditions = append(conditions, "period_start <= ?")
		args = append(args, req.PeriodTo)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	var items []domain.Royalty
	err := db.WithContext(ctx).Raw(query+where+` ORDER BY period_start DESC LIMIT ?`, args...).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatusCAS(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next domain.RoyaltyStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE royalties
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next,
		now,
		id,
		expected,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM royalties WHERE id = ?`,
		id,
	).Error
}
