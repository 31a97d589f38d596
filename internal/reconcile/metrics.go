package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

// Metrics holds the Prometheus collectors for reconciliation and swipes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	records  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration prometheus.Histogram
	swipes   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refectory",
			Name:      "reconcile_requests_total",
			Help:      "Reconciliation runs requested, by window.",
		}, []string{"window"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refectory",
			Name:      "reconcile_records_total",
			Help:      "Card rows updated or inserted, by unit.",
		}, []string{"unit"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refectory",
			Name:      "reconcile_errors_total",
			Help:      "Reconciliation errors, by type.",
		}, []string{"type"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "refectory",
			Name:      "reconcile_process_seconds",
			Help:      "Wall time of one reconciliation run.",
			Buckets:   prometheus.DefBuckets,
		}),
		swipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refectory",
			Name:      "swipes_total",
			Help:      "Card swipes, by outcome and bucket.",
		}, []string{"outcome", "bucket"}),
	}
	reg.MustRegister(m.requests, m.records, m.errors, m.duration, m.swipes)
	return m
}

func (m *Metrics) Requested(window string) {
	if m != nil {
		m.requests.WithLabelValues(window).Inc()
	}
}

func (m *Metrics) Records(unit string, n int) {
	if m != nil && n > 0 {
		m.records.WithLabelValues(unit).Add(float64(n))
	}
}

func (m *Metrics) Error(kind string) {
	if m != nil {
		m.errors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Duration(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}

// ObserveSwipe lets the swipe service report outcomes here.
func (m *Metrics) ObserveSwipe(kind types.OutcomeKind, bucket string) {
	if m != nil {
		m.swipes.WithLabelValues(string(kind), bucket).Inc()
	}
}
