package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Module provides the reconciliation metric set.
var Module = fx.Provide(New)

type Metrics struct {
	WebhooksReceived  *prometheus.CounterVec
	EventsApplied     *prometheus.CounterVec
	EventsDuplicated  *prometheus.CounterVec
	ChargeTransitions *prometheus.CounterVec
	SweepItems        *prometheus.CounterVec
	SweepRuns         prometheus.Counter
	OverdueFlagged    prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

// New returns the process-wide metric set. Collectors register with the
// default registry exactly once.
func New() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		WebhooksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "royaltyd_webhooks_received_total",
			Help: "Inbound webhook deliveries by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "royaltyd_payment_events_applied_total",
			Help: "Canonical payment events applied by source.",
		}, []string{"gateway", "source"}),
		EventsDuplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "royaltyd_payment_events_duplicate_total",
			Help: "Payment events dropped by the (gateway, event_id) dedup key.",
		}, []string{"gateway", "source"}),
		ChargeTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "royaltyd_charge_transitions_total",
			Help: "Charge status transitions accepted by the CAS update.",
		}, []string{"gateway", "status"}),
		SweepItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "royaltyd_sweep_items_total",
			Help: "Poll sweep items by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "royaltyd_sweep_runs_total",
			Help: "Completed poll sweep runs.",
		}),
		OverdueFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "royaltyd_charges_flagged_for_review_total",
			Help: "Charges past the polling grace window flagged for manual review.",
		}),
	}
}
