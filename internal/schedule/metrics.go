package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the coordinator.
type Metrics struct {
	resolves      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	discards      *prometheus.CounterVec
}

// NewMetrics registers the coordinator metrics with reg. A nil reg keeps
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "programista",
			Name:      "schedule_resolves_total",
			Help:      "Schedule resolves by how they were answered.",
		}, []string{"provider", "outcome"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "programista",
			Name:      "provider_fetches_total",
			Help:      "Provider fetches by result.",
		}, []string{"provider", "result"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "programista",
			Name:      "provider_fetch_duration_seconds",
			Help:      "Time spent in provider fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "programista",
			Name:      "provider_fetches_in_flight",
			Help:      "Provider fetches currently running.",
		}),
		discards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "programista",
			Name:      "normalize_discards_total",
			Help:      "Raw rows dropped during normalization.",
		}, []string{"provider", "reason"}),
	}
}
