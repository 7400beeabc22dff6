package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ's Prometheus collectors.
type Metrics struct {
	diffDuration   *prometheus.HistogramVec
	entriesChanged *prometheus.CounterVec
}

// NewMetrics creates the differ collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clamm",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time spent computing a state diff.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{}),
		entriesChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clamm",
			Subsystem: "differ",
			Name:      "entries_changed_total",
			Help:      "Ticks and positions carried by state diffs.",
		}, []string{"entry", "change"}),
	}
	reg.MustRegister(m.diffDuration, m.entriesChanged)
	return m
}
