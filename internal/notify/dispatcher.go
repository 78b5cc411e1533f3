package notify

import (
	"context"
	"sync"
	"time"

	establishmentdomain "github.com/franqio/royaltyd/internal/establishment/domain"
	payabledomain "github.com/franqio/royaltyd/internal/payable/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink consumes the side-effect intents the state machine emits. Payable
// settlement is synchronous (cheap DB update); notifications are
// fire-and-forget so a slow channel never blocks webhook acknowledgment.
type Sink interface {
	MarkPayablePaid(ctx context.Context, intent PayablePaidIntent) error
	Notify(intent NotificationIntent)
}

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Provider         Provider
	PayableRepo      payabledomain.Repository
	EstablishmentRpo establishmentdomain.Repository
}

type Dispatcher struct {
	db               *gorm.DB
	log              *zap.Logger
	provider         Provider
	payableRepo      payabledomain.Repository
	establishmentRpo establishmentdomain.Repository

	queue chan NotificationIntent
	wg    sync.WaitGroup
	once  sync.Once
}

func NewDispatcher(p Params) *Dispatcher {
	d := &Dispatcher{
		db:               p.DB,
		log:              p.Log.Named("notify.dispatcher"),
		provider:         p.Provider,
		payableRepo:      p.PayableRepo,
		establishmentRpo: p.EstablishmentRpo,
		queue:            make(chan NotificationIntent, 256),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) MarkPayablePaid(ctx context.Context, intent PayablePaidIntent) error {
	updated, err := d.payableRepo.MarkPaid(ctx, d.db, intent.ChargeID, intent.PaidAt, intent.Amount)
	if err != nil {
		return err
	}
	if !updated {
		// Already settled or never created; reconciliation must not fail on it.
		existing, findErr := d.payableRepo.FindByCharge(ctx, d.db, intent.ChargeID)
		switch {
		case findErr != nil:
			d.log.Warn("payable lookup failed after settle miss",
				zap.String("charge_id", intent.ChargeID.String()),
				zap.Error(findErr),
			)
		case existing == nil:
			d.log.Warn("no payable for paid charge",
				zap.String("charge_id", intent.ChargeID.String()),
			)
		default:
			d.log.Info("payable already settled",
				zap.String("charge_id", intent.ChargeID.String()),
				zap.String("status", string(existing.Status)),
			)
		}
	}
	return nil
}

func (d *Dispatcher) Notify(intent NotificationIntent) {
	select {
	case d.queue <- intent:
	default:
		d.log.Warn("notification queue full, intent dropped",
			zap.String("template", intent.Template),
			zap.String("establishment_id", intent.EstablishmentID.String()),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for intent := range d.queue {
		d.deliver(intent)
	}
}

func (d *Dispatcher) deliver(intent NotificationIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	establishment, err := d.establishmentRpo.Find(ctx, d.db, intent.EstablishmentID)
	if err != nil || establishment == nil {
		d.log.Warn("notification target not found",
			zap.String("establishment_id", intent.EstablishmentID.String()),
			zap.Error(err),
		)
		return
	}

	if err := d.provider.Send(ctx, establishment.Email, intent.Template, intent.Context); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("template", intent.Template),
			zap.String("establishment_id", intent.EstablishmentID.String()),
			zap.Error(err),
		)
	}
}

// Close drains pending intents and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}
