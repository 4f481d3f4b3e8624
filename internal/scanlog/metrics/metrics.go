package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scan audit pipeline: publisher
// buffering, outbox relay throughput, and consumer materialization.
type Metrics struct {
	Recorded        prometheus.Counter
	BufferDropped   prometheus.Counter
	BreakerDropped  prometheus.Counter
	PersistFailures prometheus.Counter
	BreakerState    prometheus.Gauge
	RelayPublished  prometheus.Counter
	RelayFailures   prometheus.Counter
	Materialized    prometheus.Counter
}

// New creates a new Metrics instance with all scan pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_recorded_total",
			Help: "Total number of scan events accepted by the publisher",
		}),
		BufferDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_buffer_dropped_total",
			Help: "Total number of scan events dropped because the ring buffer was full",
		}),
		BreakerDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_circuit_breaker_dropped_total",
			Help: "Total number of scan events dropped while the store circuit breaker was open",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_persist_failures_total",
			Help: "Total number of scan event persistence failures",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "permis_scanlog_circuit_breaker_state",
			Help: "Current store circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		RelayPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_relay_published_total",
			Help: "Total number of outbox entries published to Kafka",
		}),
		RelayFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_relay_failures_total",
			Help: "Total number of relay publish attempts that failed",
		}),
		Materialized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_scanlog_materialized_total",
			Help: "Total number of scan events materialized by the consumer",
		}),
	}
}

// IncRecorded increments the accepted-event counter.
func (m *Metrics) IncRecorded() {
	m.Recorded.Inc()
}

// IncBufferDropped increments the buffer-full drop counter.
func (m *Metrics) IncBufferDropped() {
	m.BufferDropped.Inc()
}

// IncBreakerDropped increments the circuit-breaker drop counter.
func (m *Metrics) IncBreakerDropped() {
	m.BreakerDropped.Inc()
}

// IncPersistFailures increments the persistence failure counter.
func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// SetBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}

// IncRelayPublished increments the relay publish counter.
func (m *Metrics) IncRelayPublished() {
	m.RelayPublished.Inc()
}

// IncRelayFailures increments the relay failure counter.
func (m *Metrics) IncRelayFailures() {
	m.RelayFailures.Inc()
}

// IncMaterialized increments the consumer materialization counter.
func (m *Metrics) IncMaterialized() {
	m.Materialized.Inc()
}
