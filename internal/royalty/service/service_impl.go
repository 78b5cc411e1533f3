package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/franqio/royaltyd/internal/clock"
	"github.com/franqio/royaltyd/internal/config"
	"github.com/franqio/royaltyd/internal/royalty/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Settings *config.GatewaySettingsHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	settings *config.GatewaySettingsHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("royalty.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		settings: p.Settings,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Royalty, error) {
	if req.EstablishmentID == 0 {
		return nil, domain.ErrNotFound
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, domain.ErrInvalidPeriod
	}
	if req.GrossRevenue <= 0 {
		return nil, domain.ErrInvalidRevenue
	}

	percent := s.settings.Get().RoyaltyPercent
	now := s.clock.Now()
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = req.PeriodEnd.AddDate(0, 0, 10)
	}

	royalty := &domain.Royalty{
		ID:              s.genID.Generate(),
		EstablishmentID: req.EstablishmentID,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		GrossRevenue:    req.GrossRevenue,
		RoyaltyPercent:  percent,
		RoyaltyAmount:   domain.ComputeAmount(req.GrossRevenue, percent),
		DueDate:         dueDate,
		Status:          domain.RoyaltyStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, s.db, royalty); err != nil {
		return nil, err
	}

	s.log.Info("royalty created",
		zap.String("royalty_id", royalty.ID.String()),
		zap.String("establishment_id", royalty.EstablishmentID.String()),
		zap.Int64("amount", royalty.RoyaltyAmount),
	)
	return royalty, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Royalty, error) {
	royalty, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if royalty == nil {
		return nil, domain.ErrNotFound
	}
	return royalty, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Royalty, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	royalty, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	if royalty == nil {
		return domain.ErrNotFound
	}
	if royalty.Status == domain.RoyaltyStatusPaid {
		return domain.ErrRoyaltyPaid
	}
	return s.repo.Delete(ctx, s.db, id)
}
