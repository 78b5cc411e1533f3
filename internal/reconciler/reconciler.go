package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	chargedomain "github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/charge/service"
	"github.com/franqio/royaltyd/internal/clock"
	"github.com/franqio/royaltyd/internal/config"
	"github.com/franqio/royaltyd/internal/metrics"
)

const (
	sweepLockKey = "royaltyd:reconciler:sweep"

	itemTimeout = 30 * time.Second
	runTimeout  = 10 * time.Minute
)

// RunSummary is what one poll sweep did.
type RunSummary struct {
	Verified int `json:"verified"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     chargedomain.Repository
	Charges  chargedomain.Service
	Adapters *service.AdapterSource
	Settings *config.GatewaySettingsHolder
	Locker   *Locker `optional:"true"`
	Metrics  *metrics.Metrics
}

// Reconciler drives the poll sweep: the safety net that settles charges whose
// webhooks never arrived or were lost.
type Reconciler struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     chargedomain.Repository
	charges  chargedomain.Service
	adapters *service.AdapterSource
	settings *config.GatewaySettingsHolder
	locker   *Locker
	metrics  *metrics.Metrics
}

func New(p Params) *Reconciler {
	return &Reconciler{
		db:       p.DB,
		log:      p.Log.Named("reconciler"),
		clock:    p.Clock,
		repo:     p.Repo,
		charges:  p.Charges,
		adapters: p.Adapters,
		settings: p.Settings,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

// RunOnce executes a single sweep. Per-item failures are counted, not fatal;
// the returned error covers run-level failures only (lock, listing).
func (r *Reconciler) RunOnce(parent context.Context) (RunSummary, error) {
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	settings := r.settings.Get()

	token, acquired, err := r.locker.TryLock(ctx, sweepLockKey, settings.PollInterval)
	if err != nil {
		return RunSummary{}, err
	}
	if !acquired {
		r.log.Info("sweep already running on another replica, skipping")
		return RunSummary{}, nil
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := r.locker.Release(releaseCtx, sweepLockKey, token); err != nil {
			r.log.Warn("sweep lock not released", zap.Error(err))
		}
	}()

	now := r.clock.Now()
	graceCutoff := now.Add(-settings.GraceWindow)

	r.flagOverdue(ctx, graceCutoff, settings.PollBatchSize)

	charges, err := r.repo.ListOpenForPolling(ctx, r.db, graceCutoff, settings.PollBatchSize)
	if err != nil {
		return RunSummary{}, err
	}
	if len(charges) == 0 {
		r.metrics.SweepRuns.Inc()
		return RunSummary{}, nil
	}

	// One adapter per gateway per run so credentials and tunables are read
	// once per sweep.
	adapters := map[string]chargedomain.GatewayAdapter{}
	for _, charge := range charges {
		if _, ok := adapters[charge.Gateway]; ok {
			continue
		}
		adapter, err := r.adapters.AdapterFor(ctx, charge.Gateway)
		if err != nil {
			r.log.Warn("gateway unavailable for sweep",
				zap.String("gateway", charge.Gateway),
				zap.Error(err),
			)
			adapters[charge.Gateway] = nil
			continue
		}
		adapters[charge.Gateway] = adapter
	}

	var (
		mu      sync.Mutex
		summary RunSummary
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(settings.SweepWorkers)

	for _, charge := range charges {
		adapter := adapters[charge.Gateway]
		if adapter == nil {
			mu.Lock()
			summary.Errors++
			mu.Unlock()
			r.metrics.SweepItems.WithLabelValues(charge.Gateway, "error").Inc()
			continue
		}

		group.Go(func() error {
			outcome := r.verifyOne(groupCtx, adapter, charge)
			mu.Lock()
			summary.Verified++
			switch outcome {
			case outcomeUpdated:
				summary.Updated++
			case outcomeError:
				summary.Errors++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	r.metrics.SweepRuns.Inc()
	r.log.Info("sweep finished",
		zap.Int("verified", summary.Verified),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

type itemOutcome int

const (
	outcomeUnchanged itemOutcome = iota
	outcomeUpdated
	outcomeError
)

func (r *Reconciler) verifyOne(parent context.Context, adapter chargedomain.GatewayAdapter, charge chargedomain.Charge) itemOutcome {
	ctx, cancel := context.WithTimeout(parent, itemTimeout)
	defer cancel()

	observed, raw, err := adapter.QueryStatus(ctx, charge.ExternalReference)
	if err != nil {
		r.metrics.SweepItems.WithLabelValues(charge.Gateway, "error").Inc()
		r.log.Warn("status query failed",
			zap.String("charge_id", charge.ID.String()),
			zap.String("gateway", charge.Gateway),
			zap.Error(err),
		)
		return outcomeError
	}

	event := &chargedomain.PaymentEvent{
		Source:            chargedomain.SourcePoll,
		Gateway:           charge.Gateway,
		ExternalReference: charge.ExternalReference,
		Observed:          observed,
		ObservedAt:        r.clock.Now(),
		RawPayload:        raw,
	}
	event.EnsureEventID()

	result, err := r.charges.ApplyEvent(ctx, event)
	if err != nil {
		r.metrics.SweepItems.WithLabelValues(charge.Gateway, "error").Inc()
		r.log.Warn("sweep event not applied",
			zap.String("charge_id", charge.ID.String()),
			zap.String("gateway", charge.Gateway),
			zap.Error(err),
		)
		return outcomeError
	}

	if result.Transitioned {
		r.metrics.SweepItems.WithLabelValues(charge.Gateway, "updated").Inc()
		return outcomeUpdated
	}
	r.metrics.SweepItems.WithLabelValues(charge.Gateway, "unchanged").Inc()
	return outcomeUnchanged
}

// flagOverdue surfaces charges still open past the polling grace window.
// They leave the sweep rotation and wait for an operator.
func (r *Reconciler) flagOverdue(ctx context.Context, cutoff time.Time, limit int) {
	overdue, err := r.repo.ListOverdueForReview(ctx, r.db, cutoff, limit)
	if err != nil {
		r.log.Warn("overdue listing failed", zap.Error(err))
		return
	}
	for _, charge := range overdue {
		r.metrics.OverdueFlagged.Inc()
		r.log.Warn("charge open past grace window, needs manual review",
			zap.String("charge_id", charge.ID.String()),
			zap.String("gateway", charge.Gateway),
			zap.String("external_reference", charge.ExternalReference),
			zap.Time("due_date", charge.DueDate),
		)
	}
}

// RunForever sweeps on the configured interval until the context is canceled.
// The interval is re-read every cycle so config reloads apply without restart.
func (r *Reconciler) RunForever(ctx context.Context) {
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("sweep run failed", zap.Error(err))
		}

		interval := r.settings.Get().PollInterval
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
