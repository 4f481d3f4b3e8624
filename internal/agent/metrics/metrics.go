package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcome labels.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginLocked  = "locked"
)

// Metrics provides observability for the agent module.
type Metrics struct {
	AgentsCreated prometheus.Counter
	Logins        *prometheus.CounterVec
}

// New creates a new Metrics instance with all agent metrics registered.
func New() *Metrics {
	return &Metrics{
		AgentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permis_agents_created_total",
			Help: "Total number of agent accounts created",
		}),
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "permis_agent_logins_total",
			Help: "Total number of login attempts by outcome",
		}, []string{"result"}),
	}
}

// IncrementCreated records a new agent account.
func (m *Metrics) IncrementCreated() {
	if m != nil {
		m.AgentsCreated.Inc()
	}
}

// IncrementLogin records one login attempt outcome.
func (m *Metrics) IncrementLogin(result string) {
	if m != nil {
		m.Logins.WithLabelValues(result).Inc()
	}
}
