package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Attempts             *prometheus.CounterVec
	VerifiedParticipants prometheus.Gauge
	MaxParticipants      prometheus.Gauge
	NotifierFailures     prometheus.Counter
	AttemptLogDropped    prometheus.Counter
	AttemptLogFailures   prometheus.Counter
	AvailabilityClients  prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_attempts_total",
			Help: "Registration, verification and resend attempts by outcome",
		}, []string{"action", "outcome"}),
		VerifiedParticipants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eventreg_verified_participants",
			Help: "Verified participants as last observed by this instance",
		}),
		MaxParticipants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eventreg_max_participants",
			Help: "Configured capacity ceiling",
		}),
		NotifierFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_notifier_failures_total",
			Help: "Verification emails that could not be sent",
		}),
		AttemptLogDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_attempt_log_dropped_total",
			Help: "Attempt log entries dropped because the queue was full",
		}),
		AttemptLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_attempt_log_failures_total",
			Help: "Attempt log entries that failed to persist",
		}),
		AvailabilityClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eventreg_availability_clients",
			Help: "Connected availability websocket clients",
		}),
	}
}

func (m *Metrics) ObserveAttempt(action, outcome string) {
	m.Attempts.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) SetVerified(count int64) {
	m.VerifiedParticipants.Set(float64(count))
}

func (m *Metrics) SetMaxParticipants(max int64) {
	m.MaxParticipants.Set(float64(max))
}

func (m *Metrics) IncrementNotifierFailures() {
	m.NotifierFailures.Inc()
}

func (m *Metrics) IncrementAttemptLogDropped() {
	m.AttemptLogDropped.Inc()
}

func (m *Metrics) IncrementAttemptLogFailures() {
	m.AttemptLogFailures.Inc()
}

func (m *Metrics) SetAvailabilityClients(n int) {
	m.AvailabilityClients.Set(float64(n))
}
