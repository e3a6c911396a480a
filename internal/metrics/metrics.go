package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "challenge"

type Metrics struct {
	LedgerCalls       *prometheus.CounterVec
	LedgerLatency     *prometheus.HistogramVec
	Compensations     *prometheus.CounterVec
	Eliminations      prometheus.Counter
	Distributions     prometheus.Counter
	Divergences       prometheus.Counter
	SchedulerTick     prometheus.Histogram
	FanoutDropped     prometheus.Counter
	FanoutSubscribers prometheus.Gauge
}

// New registers every collector on reg. A nil reg leaves them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_calls_total",
			Help:      "Ledger client calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Ledger client call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating store writes by operation and outcome.",
		}, []string{"op", "outcome"}),
		Eliminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eliminations_total",
			Help:      "Committed elimination rounds.",
		}),
		Distributions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distributions_total",
			Help:      "Committed pool distributions.",
		}),
		Divergences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_divergences_total",
			Help:      "Challenges whose pool disagreed with the ledger during reconciliation.",
		}),
		SchedulerTick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of elimination scheduler ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		FanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_dropped_events_total",
			Help:      "Events dropped because the broadcast queue was full.",
		}),
		FanoutSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fanout_subscribers",
			Help:      "Live realtime subscribers across all challenges.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LedgerCalls, m.LedgerLatency, m.Compensations, m.Eliminations,
			m.Distributions, m.Divergences, m.SchedulerTick, m.FanoutDropped, m.FanoutSubscribers,
		)
	}
	return m
}

func (m *Metrics) ObserveLedgerCall(op, outcome string, started time.Time) {
	m.LedgerCalls.WithLabelValues(op, outcome).Inc()
	m.LedgerLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveCompensation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.Compensations.WithLabelValues(op, outcome).Inc()
}
