package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the auth counters.
const (
	resultSuccess            = "success"
	resultDuplicate          = "duplicate"
	resultInvalidInput       = "invalid_input"
	resultInvalidCredentials = "invalid_credentials"
	resultInvalidToken       = "invalid_token"
	resultExpired            = "expired"
	resultError              = "error"
)

// Metrics holds the auth service counters. A nil *Metrics records nothing.
type Metrics struct {
	register *prometheus.CounterVec
	login    *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	logout   prometheus.Counter
	pruned   prometheus.Counter
}

// NewMetrics registers the auth counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		register: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "auth",
			Name:      "register_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		login: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh-token exchanges by result.",
		}, []string{"result"}),
		logout: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "auth",
			Name:      "logout_total",
			Help:      "Logout calls.",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campusmart",
			Subsystem: "auth",
			Name:      "sessions_pruned_total",
			Help:      "Refresh-token records evicted by expiry or the per-user cap.",
		}),
	}
}

func (m *Metrics) observeRegister(result string) {
	if m != nil {
		m.register.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observeLogin(result string) {
	if m != nil {
		m.login.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observeRefresh(result string) {
	if m != nil {
		m.refresh.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observeLogout() {
	if m != nil {
		m.logout.Inc()
	}
}

func (m *Metrics) observePruned(n int) {
	if m != nil && n > 0 {
		m.pruned.Add(float64(n))
	}
}
