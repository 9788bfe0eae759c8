package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the cycle-level counters/histograms the coordinator exports, grounded on the
// pack's cryptorun-style prometheus wiring (counters per outcome, a duration histogram per
// cycle run).
type Metrics struct {
	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	ActionsTotal   *prometheus.CounterVec
	ForecastHorizonMmol *prometheus.GaugeVec
}

// NewMetrics registers the coordinator's metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glucocopilot",
			Subsystem: "coordinator",
			Name:      "cycles_total",
			Help:      "Automation cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "glucocopilot",
			Subsystem: "coordinator",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a completed automation cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glucocopilot",
			Subsystem: "coordinator",
			Name:      "actions_total",
			Help:      "Dispatched actions by type and delivery outcome.",
		}, []string{"type", "delivered"}),
		ForecastHorizonMmol: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "glucocopilot",
			Subsystem: "coordinator",
			Name:      "forecast_mmol",
			Help:      "Most recent forecast value in mmol/L by horizon.",
		}, []string{"horizon_minutes"}),
	}
	reg.MustRegister(m.CyclesTotal, m.CycleDuration, m.ActionsTotal, m.ForecastHorizonMmol)
	return m
}
