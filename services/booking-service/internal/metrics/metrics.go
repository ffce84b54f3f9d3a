package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the booking service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	operations    *prometheus.CounterVec
	stepFailures  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	reminders     *prometheus.CounterVec
	stepLatency   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbook",
			Subsystem: "booking",
			Name:      "best_effort_failures_total",
			Help:      "Failed best effort steps that did not fail the operation",
		}, []string{"step"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbook",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Email dispatch attempts",
		}, []string{"kind", "status"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellbook",
			Subsystem: "reminders",
			Name:      "events_total",
			Help:      "Reminders scheduled, skipped, sent, failed or voided",
		}, []string{"event"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellbook",
			Subsystem: "booking",
			Name:      "step_duration_seconds",
			Help:      "Latency of external steps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.stepFailures, m.notifications, m.reminders, m.stepLatency)
	return m
}

func (m *Metrics) Operation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) StepFailed(step string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveStep(step string, started time.Time) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Reminders(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reminders.WithLabelValues(event).Add(float64(n))
}
