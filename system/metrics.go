package system

import (
	"math/big"

	"github.com/defistate/clamm-engine/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a PoolSystem.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	TicksCrossed       *prometheus.HistogramVec
	Liquidity          *prometheus.GaugeVec
	CurrentTick        *prometheus.GaugeVec
	InitializedTicks   *prometheus.GaugeVec
	Positions          *prometheus.GaugeVec
	Seq                *prometheus.GaugeVec
	Subscribers        *prometheus.GaugeVec
	SubscribersDropped *prometheus.CounterVec
}

// NewMetrics creates the system collectors, labelled with the system name,
// and registers them with reg.
func NewMetrics(reg prometheus.Registerer, systemName string) *Metrics {
	labels := prometheus.Labels{"system": systemName}
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clamm",
			Name:        "operations_total",
			Help:        "Pool operations by result: ok or the error class.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "clamm",
			Name:        "operation_duration_seconds",
			Help:        "Time spent in a pool operation, lock wait included.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
		TicksCrossed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "clamm",
			Name:        "swap_ticks_crossed",
			Help:        "Initialized ticks crossed by a committed swap.",
			ConstLabels: labels,
			Buckets:     []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}, []string{}),
		Liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "active_liquidity",
			Help:        "Liquidity in range at the current tick.",
			ConstLabels: labels,
		}, []string{}),
		CurrentTick: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "current_tick",
			Help:        "Tick of the current price.",
			ConstLabels: labels,
		}, []string{}),
		InitializedTicks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "initialized_ticks",
			Help:        "Number of initialized ticks.",
			ConstLabels: labels,
		}, []string{}),
		Positions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "positions",
			Help:        "Number of positions in the ledger.",
			ConstLabels: labels,
		}, []string{}),
		Seq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "state_seq",
			Help:        "Sequence number of the latest committed state.",
			ConstLabels: labels,
		}, []string{}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "clamm",
			Name:        "subscribers",
			Help:        "Open diff subscriptions.",
			ConstLabels: labels,
		}, []string{}),
		SubscribersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clamm",
			Name:        "subscribers_dropped_total",
			Help:        "Subscriptions closed because the subscriber fell behind.",
			ConstLabels: labels,
		}, []string{}),
	}
	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.TicksCrossed,
		m.Liquidity,
		m.CurrentTick,
		m.InitializedTicks,
		m.Positions,
		m.Seq,
		m.Subscribers,
		m.SubscribersDropped,
	)
	return m
}

// observe updates the gauges from a committed state.
func (m *Metrics) observe(state *engine.State) {
	liquidity, _ := new(big.Float).SetInt(state.Pool.Liquidity.Big()).Float64()
	m.Liquidity.WithLabelValues().Set(liquidity)
	m.CurrentTick.WithLabelValues().Set(float64(state.Pool.Tick))
	m.InitializedTicks.WithLabelValues().Set(float64(len(state.Pool.Ticks)))
	m.Positions.WithLabelValues().Set(float64(len(state.Pool.Positions)))
	m.Seq.WithLabelValues().Set(float64(state.Seq))
}
