package guard

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts refresh exchanges. A nil *Metrics records nothing.
type Metrics struct {
	refresh *prometheus.CounterVec
	shared  prometheus.Counter
}

// NewMetrics registers the client counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		refresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Refresh exchanges started by the session guard, by result.",
		}, []string{"result"}),
		shared: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Callers that joined an in-flight refresh instead of starting one.",
		}),
	}
}

func (m *Metrics) observeRefresh(err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoRefreshToken):
		result = "no_token"
	case errors.Is(err, ErrRefreshRejected):
		result = "rejected"
	default:
		result = "error"
	}
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) observeShared() {
	if m != nil {
		m.shared.Inc()
	}
}
