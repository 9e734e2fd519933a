package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bfmr_bot"

// Metrics are the bot's Prometheus series.
type Metrics struct {
	Outcomes            *prometheus.CounterVec
	Validations         *prometheus.CounterVec
	Reservations        *prometheus.CounterVec
	UnitsReserved       prometheus.Counter
	AllocationShortfall prometheus.Counter
	DealResults         *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	Paused              prometheus.Gauge
	TrackingSubmitted   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the series with reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Processing outcomes recorded, by retailer and action.",
		}, []string{"retailer", "action"}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Retailer page validations, by retailer and result.",
		}, []string{"retailer", "result"}),
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Incremental reservations, by terminal state.",
		}, []string{"state"}),
		UnitsReserved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_reserved_total",
			Help:      "Units reserved on the board.",
		}),
		AllocationShortfall: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_shortfall_units_total",
			Help:      "Reserved units no retailer could take.",
		}),
		DealResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_results_total",
			Help:      "Processed deals, by final state.",
		}, []string{"state"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_cycle_seconds",
			Help:      "Duration of a deal check cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Paused: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the bot is paused after repeated fatal logins.",
		}),
		TrackingSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_submissions_total",
			Help:      "Tracking submissions sent to the board, by result.",
		}, []string{"result"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
