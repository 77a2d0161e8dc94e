package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the reconciliation core.
// Illegal transitions and stale drops are counted rather than errored
// because they are expected products of an at-least-once, unordered feed.
type Metrics struct {
	WebhookOutcomes  *prometheus.CounterVec
	WebhookRejected  *prometheus.CounterVec
	GatewayCalls     *prometheus.HistogramVec
	ProjectionErrors prometheus.Counter
	SweepRepairs     prometheus.Counter
	SweepRuns        *prometheus.CounterVec
}

// NewMetrics creates and registers the billing collectors on reg. Pass
// prometheus.NewRegistry() in tests to avoid default-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "webhook_outcomes_total",
			Help:      "Webhook notifications by reconciliation outcome",
		}, []string{"outcome"}),
		WebhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "webhook_rejected_total",
			Help:      "Webhook notifications rejected before reconciliation",
		}, []string{"reason"}),
		GatewayCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "gateway_call_duration_seconds",
			Help:      "Outbound payment gateway call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call", "status"}),
		ProjectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "projection_errors_total",
			Help:      "Account projection writes that failed or hit config errors",
		}),
		SweepRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "sweep_repairs_total",
			Help:      "Stale projection pointers repaired by the consistency sweep",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "sweep_runs_total",
			Help:      "Consistency sweep runs by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.WebhookOutcomes,
			m.WebhookRejected,
			m.GatewayCalls,
			m.ProjectionErrors,
			m.SweepRepairs,
			m.SweepRuns,
		)
	}
	return m
}
