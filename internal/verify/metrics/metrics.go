package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Verification outcomes by status and lookup mode
	Outcomes *prometheus.CounterVec

	// Degraded lookups answered from the snapshot cache
	SnapshotFallbacks prometheus.Counter

	// Full classification latency including lookup
	VerifyLatency prometheus.Histogram
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "permis_verify_outcomes_total",
			Help: "Total verification outcomes by status and mode",
		}, []string{"status", "mode"}),

		SnapshotFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_verify_snapshot_fallbacks_total",
			Help: "Total lookups answered from the snapshot cache because the authoritative store was unreachable",
		}),

		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "permis_verify_duration_seconds",
			Help:    "Duration of full verification including record lookup",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

// IncrementOutcome records one classification.
func (m *Metrics) IncrementOutcome(status, mode string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status, mode).Inc()
	}
}

// IncrementSnapshotFallback records a lookup served by the snapshot cache.
func (m *Metrics) IncrementSnapshotFallback() {
	if m != nil {
		m.SnapshotFallbacks.Inc()
	}
}

// ObserveVerify records the duration of one verification call.
func (m *Metrics) ObserveVerify(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}
