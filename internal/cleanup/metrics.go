package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeRemovedBot      = "removed_bot"
	outcomeRemovedInactive = "removed_inactive"
	outcomeActive          = "active"
	outcomeFailure         = "failure"
)

// Metrics exports sweep counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsProcessed *prometheus.CounterVec
	sweepsTotal       *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sessionsTotal     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_processed_total",
				Help:      "Sessions visited by sweeps, by outcome",
			},
			[]string{"outcome"},
		),
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Completed and aborted sweeps",
			},
			[]string{"status"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Wall time of one sweep",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),
		sessionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Session count observed at the start of the last sweep",
			},
		),
	}

	reg.MustRegister(
		m.sessionsProcessed,
		m.sweepsTotal,
		m.sweepDuration,
		m.sessionsTotal,
	)

	for _, outcome := range []string{outcomeRemovedBot, outcomeRemovedInactive, outcomeActive, outcomeFailure} {
		m.sessionsProcessed.WithLabelValues(outcome)
	}

	return m
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sessionsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSweep(result Result, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(result.Duration.Seconds())
	if err != nil {
		m.sweepsTotal.WithLabelValues("error").Inc()
		return
	}
	m.sweepsTotal.WithLabelValues("ok").Inc()
	m.sessionsTotal.Set(float64(result.Total))
}
