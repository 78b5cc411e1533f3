package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/clock"
	"github.com/franqio/royaltyd/internal/config"
	establishmentdomain "github.com/franqio/royaltyd/internal/establishment/domain"
	"github.com/franqio/royaltyd/internal/metrics"
	"github.com/franqio/royaltyd/internal/notify"
	payabledomain "github.com/franqio/royaltyd/internal/payable/domain"
	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
	"github.com/franqio/royaltyd/pkg/db"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	RoyaltyRepo      royaltydomain.Repository
	EstablishmentRpo establishmentdomain.Repository
	PayableRepo      payabledomain.Repository
	Adapters         *AdapterSource
	Settings         *config.GatewaySettingsHolder
	Sink             notify.Sink
	Metrics          *metrics.Metrics
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	royaltyRepo      royaltydomain.Repository
	establishmentRpo establishmentdomain.Repository
	payableRepo      payabledomain.Repository
	adapters         *AdapterSource
	settings         *config.GatewaySettingsHolder
	sink             notify.Sink
	metrics          *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("charge.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		royaltyRepo:      p.RoyaltyRepo,
		establishmentRpo: p.EstablishmentRpo,
		payableRepo:      p.PayableRepo,
		adapters:         p.Adapters,
		settings:         p.Settings,
		sink:             p.Sink,
		metrics:          p.Metrics,
	}
}

func (s *Service) IssueCharge(ctx context.Context, royaltyID snowflake.ID) (*domain.Charge, error) {
	royalty, err := s.royaltyRepo.Find(ctx, s.db, royaltyID)
	if err != nil {
		return nil, err
	}
	if royalty == nil {
		return nil, royaltydomain.ErrNotFound
	}
	if royalty.Status == royaltydomain.RoyaltyStatusPaid {
		return nil, royaltydomain.ErrRoyaltyPaid
	}

	// One open charge per royalty. A failed or canceled charge does not
	// block re-issuance.
	open, err := s.repo.FindOpenByRoyalty(ctx, s.db, royaltyID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, domain.ErrDuplicateCharge
	}

	establishment, err := s.establishmentRpo.Find(ctx, s.db, royalty.EstablishmentID)
	if err != nil {
		return nil, err
	}
	if establishment == nil {
		return nil, establishmentdomain.ErrNotFound
	}

	gateway := strings.ToLower(strings.TrimSpace(establishment.Gateway))
	if !domain.KnownGateway(gateway) {
		return nil, domain.ErrInvalidGateway
	}

	if royalty.RoyaltyAmount < s.settings.Get().MinAmountFor(gateway) {
		return nil, domain.ErrAmountTooSmall
	}

	adapter, err := s.adapters.AdapterFor(ctx, gateway)
	if err != nil {
		return nil, err
	}

	result, err := adapter.IssueCharge(ctx, domain.IssueRequest{
		RoyaltyID:     royalty.ID,
		Amount:        royalty.RoyaltyAmount,
		DueDate:       royalty.DueDate,
		PayerName:     establishment.Name,
		PayerDocument: establishment.Document,
		PayerEmail:    establishment.Email,
		PayerAddress:  establishment.Address,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	charge := &domain.Charge{
		ID:                s.genID.Generate(),
		RoyaltyID:         royalty.ID,
		EstablishmentID:   royalty.EstablishmentID,
		Gateway:           gateway,
		ExternalReference: result.ExternalReference,
		Amount:            royalty.RoyaltyAmount,
		DueDate:           royalty.DueDate,
		Status:            domain.ChargeStatusIssued,
		RawMetadata:       datatypes.JSON(result.RawMetadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateCharge(ctx, s.db, charge); err != nil {
		// Providers issue idempotently per royalty; a retried issuance can
		// come back with an external reference we already hold.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCharge
		}
		return nil, err
	}

	if _, err := s.royaltyRepo.UpdateStatusCAS(ctx, s.db, royalty.ID, royalty.Status, royaltydomain.RoyaltyStatusChargeIssued, now); err != nil {
		s.log.Warn("royalty status not advanced after issuance",
			zap.String("royalty_id", royalty.ID.String()),
			zap.Error(err),
		)
	}

	payable := &payabledomain.Payable{
		ID:        s.genID.Generate(),
		RoyaltyID: royalty.ID,
		ChargeID:  charge.ID,
		Amount:    charge.Amount,
		DueDate:   charge.DueDate,
		Status:    payabledomain.PayableStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payableRepo.Create(ctx, s.db, payable); err != nil {
		s.log.Error("payable not created for charge",
			zap.String("charge_id", charge.ID.String()),
			zap.Error(err),
		)
	}

	s.sink.Notify(notify.NotificationIntent{
		EstablishmentID: royalty.EstablishmentID,
		Template:        notify.TemplateChargeIssued,
		Context: map[string]any{
			"charge_id": charge.ID.String(),
			"amount":    charge.Amount,
			"due_date":  charge.DueDate.Format("2006-01-02"),
			"gateway":   gateway,
		},
		EnqueuedAt: now,
	})

	s.log.Info("charge issued",
		zap.String("charge_id", charge.ID.String()),
		zap.String("royalty_id", royalty.ID.String()),
		zap.String("gateway", gateway),
		zap.String("external_reference", charge.ExternalReference),
		zap.Int64("amount", charge.Amount),
	)
	return charge, nil
}

// ApplyEvent runs one canonical observation through the reconciliation state
// machine. Delivery is exactly-once per (gateway, event_id): the ledger insert
// and the conditional status update together guarantee a charge settles at
// most one time, whichever of webhook or poll gets there first.
func (s *Service) ApplyEvent(ctx context.Context, event *domain.PaymentEvent) (*domain.ApplyResult, error) {
	if event == nil {
		return nil, domain.ErrInvalidEvent
	}
	if !domain.KnownGateway(event.Gateway) {
		return nil, domain.ErrInvalidGateway
	}

	charge, err := s.repo.FindByExternalRef(ctx, s.db, event.Gateway, event.ExternalReference)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, domain.ErrUnknownReference
	}

	event.EnsureEventID()
	now := s.clock.Now()

	record := &domain.EventRecord{
		ID:         s.genID.Generate(),
		Gateway:    event.Gateway,
		EventID:    event.EventID,
		Source:     event.Source,
		ChargeID:   charge.ID,
		Observed:   string(event.Observed),
		Payload:    datatypes.JSON(event.RawPayload),
		ReceivedAt: now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	recordID := record.ID
	if !inserted {
		// Reload the row the dedup key points at. Only a record that finished
		// processing is a true duplicate; an unprocessed one means the first
		// delivery died between the insert and the transition, and this
		// redelivery picks up where it stopped.
		prior, err := s.repo.FindEvent(ctx, s.db, event.Gateway, event.EventID)
		if err != nil {
			return nil, err
		}
		if prior == nil || prior.ProcessedAt != nil {
			s.metrics.EventsDuplicated.WithLabelValues(event.Gateway, event.Source).Inc()
			fields := []zap.Field{
				zap.String("gateway", event.Gateway),
				zap.String("event_id", event.EventID),
				zap.String("source", event.Source),
			}
			if prior != nil {
				fields = append(fields,
					zap.String("first_source", prior.Source),
					zap.Time("first_received_at", prior.ReceivedAt),
				)
			}
			s.log.Info("payment event already processed", fields...)
			return &domain.ApplyResult{
				ChargeID:  charge.ID,
				Status:    charge.Status,
				Duplicate: true,
			}, nil
		}
		recordID = prior.ID
		s.log.Warn("resuming unprocessed payment event",
			zap.String("gateway", event.Gateway),
			zap.String("event_id", event.EventID),
			zap.String("first_source", prior.Source),
			zap.Time("first_received_at", prior.ReceivedAt),
		)
	}
	s.metrics.EventsApplied.WithLabelValues(event.Gateway, event.Source).Inc()

	result := &domain.ApplyResult{ChargeID: charge.ID, Status: charge.Status}

	next, ok := domain.NextStatus(charge.Status, event.Observed)
	if !ok {
		s.markProcessed(ctx, recordID, "no_transition", now)
		return result, nil
	}

	updated, err := s.repo.UpdateStatusCAS(ctx, s.db, charge.ID, charge.Status, next, datatypes.JSON(event.RawPayload), now)
	if err != nil {
		return nil, err
	}
	if !updated {
		// A concurrent writer moved the charge between our read and the
		// update. The observation stays in the ledger for audit.
		s.log.Warn("stale transition dropped",
			zap.String("charge_id", charge.ID.String()),
			zap.String("from", string(charge.Status)),
			zap.String("to", string(next)),
			zap.String("source", event.Source),
		)
		s.markProcessed(ctx, recordID, "stale_transition", now)
		return result, nil
	}

	s.metrics.ChargeTransitions.WithLabelValues(event.Gateway, string(next)).Inc()
	result.Transitioned = true
	result.Status = next

	// Failed and canceled charges leave the royalty where it is; issuing a
	// replacement charge is an operator action.
	switch next {
	case domain.ChargeStatusPaid:
		s.settleRoyalty(ctx, charge, event, now)
	case domain.ChargeStatusFailed:
		s.sink.Notify(notify.NotificationIntent{
			EstablishmentID: charge.EstablishmentID,
			Template:        notify.TemplateChargeFailed,
			Context: map[string]any{
				"charge_id": charge.ID.String(),
				"amount":    charge.Amount,
			},
			EnqueuedAt: now,
		})
	}

	s.markProcessed(ctx, recordID, string(next), now)

	s.log.Info("charge transitioned",
		zap.String("charge_id", charge.ID.String()),
		zap.String("from", string(charge.Status)),
		zap.String("to", string(next)),
		zap.String("source", event.Source),
	)
	return result, nil
}

func (s *Service) settleRoyalty(ctx context.Context, charge *domain.Charge, event *domain.PaymentEvent, now time.Time) {
	royalty, err := s.royaltyRepo.Find(ctx, s.db, charge.RoyaltyID)
	if err != nil || royalty == nil {
		s.log.Error("royalty not found for paid charge",
			zap.String("charge_id", charge.ID.String()),
			zap.String("royalty_id", charge.RoyaltyID.String()),
			zap.Error(err),
		)
		return
	}
	if royalty.Status != royaltydomain.RoyaltyStatusPaid {
		if _, err := s.royaltyRepo.UpdateStatusCAS(ctx, s.db, royalty.ID, royalty.Status, royaltydomain.RoyaltyStatusPaid, now); err != nil {
			s.log.Error("royalty not marked paid",
				zap.String("royalty_id", royalty.ID.String()),
				zap.Error(err),
			)
		}
	}

	paidAt := event.ObservedAt
	if paidAt.IsZero() {
		paidAt = now
	}
	if err := s.sink.MarkPayablePaid(ctx, notify.PayablePaidIntent{
		ChargeID: charge.ID,
		Amount:   charge.Amount,
		PaidAt:   paidAt,
	}); err != nil {
		s.log.Error("payable not settled for paid charge",
			zap.String("charge_id", charge.ID.String()),
			zap.Error(err),
		)
	}

	s.sink.Notify(notify.NotificationIntent{
		EstablishmentID: charge.EstablishmentID,
		Template:        notify.TemplatePaymentConfirmed,
		Context: map[string]any{
			"charge_id": charge.ID.String(),
			"amount":    charge.Amount,
			"paid_at":   paidAt.Format(time.RFC3339),
		},
		EnqueuedAt: now,
	})
}

func (s *Service) markProcessed(ctx context.Context, id snowflake.ID, resultStatus string, now time.Time) {
	if err := s.repo.MarkEventProcessed(ctx, s.db, id, resultStatus, now); err != nil {
		s.log.Warn("event record not marked processed",
			zap.String("event_record_id", id.String()),
			zap.Error(err),
		)
	}
}
