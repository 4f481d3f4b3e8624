package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the permit module.
// Tracks issuance volume, duplicate acknowledgements, and creation latency.
type Metrics struct {
	PermitsCreated       prometheus.Counter
	DuplicateSubmissions prometheus.Counter
	CreateDuration       prometheus.Histogram
}

// New creates a new Metrics instance with all permit module metrics registered.
func New() *Metrics {
	return &Metrics{
		PermitsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_permits_created_total",
			Help: "Total number of permits created",
		}),
		DuplicateSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_permit_duplicate_submissions_total",
			Help: "Total number of submissions acknowledged as duplicates of an existing permit",
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "permis_permit_create_duration_seconds",
			Help:    "Duration of CreatePermit operations including idempotency resolution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful permit creation.
func (m *Metrics) IncrementCreated() {
	m.PermitsCreated.Inc()
}

// IncrementDuplicate records a submission resolved to an already committed permit.
func (m *Metrics) IncrementDuplicate() {
	m.DuplicateSubmissions.Inc()
}

// ObserveCreate records the duration of a CreatePermit operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
