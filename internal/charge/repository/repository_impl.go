package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/franqio/royaltyd/internal/charge/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateCharge(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO charges (
			id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.RoyaltyID,
		charge.EstablishmentID,
		charge.Gateway,
		charge.ExternalReference,
		charge.Amount,
		charge.DueDate,
		charge.Status,
		charge.RawMetadata,
		charge.CreatedAt,
		charge.UpdatedAt,
	).Error
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, gateway, externalReference string) (*domain.Charge, error) {
	var item domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at
		 FROM charges
		 WHERE gateway = ? AND external_reference = ?
		 LIMIT 1`,
		gateway,
		externalReference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOpenByRoyalty(ctx context.Context, db *gorm.DB, royaltyID snowflake.ID) (*domain.Charge, error) {
	var item domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at
		 FROM charges
		 WHERE royalty_id = ? AND status NOT IN (?, ?, ?)
		 LIMIT 1`,
		royaltyID,
		domain.ChargeStatusPaid,
		domain.ChargeStatusFailed,
		domain.ChargeStatusCanceled,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatusCAS(ctx context.Context, db *gorm.DB, chargeID snowflake.ID, expected, next domain.ChargeStatus, raw datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE charges
		 SET status = ?, raw_metadata = COALESCE(?, raw_metadata), updated_at = ?
		 WHERE id = ? AND status = ?`,
		next,
		raw,
		now,
		chargeID,
		expected,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListOpenForPolling(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Charge, error) {
	var items []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at
		 FROM charges
		 WHERE status NOT IN (?, ?, ?) AND due_date >= ?
		 ORDER BY id
		 LIMIT ?`,
		domain.ChargeStatusPaid,
		domain.ChargeStatusFailed,
		domain.ChargeStatusCanceled,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOverdueForReview(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Charge, error) {
	var items []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at
		 FROM charges
		 WHERE status NOT IN (?, ?, ?) AND due_date < ?
		 ORDER BY due_date
		 LIMIT ?`,
		domain.ChargeStatusPaid,
		domain.ChargeStatusFailed,
		domain.ChargeStatusCanceled,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, gateway, event_id, source, charge_id, observed,
			result_status, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway, event_id) DO NOTHING`,
		event.ID,
		event.Gateway,
		event.EventID,
		event.Source,
		event.ChargeID,
		event.Observed,
		event.ResultStatus,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, gateway, eventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway, event_id, source, charge_id, observed,
			result_status, payload, received_at, processed_at
		 FROM payment_events
		 WHERE gateway = ? AND event_id = ?
		 LIMIT 1`,
		gateway,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, resultStatus string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET result_status = ?, processed_at = ?
		 WHERE id = ?`,
		resultStatus,
		processedAt,
		id,
	).Error
}
