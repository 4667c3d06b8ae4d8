package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder scheduler.
type Metrics struct {
	RemindersSentTotal *prometheus.CounterVec
	Candidates         prometheus.Gauge
	PassDuration       prometheus.Histogram
}

// NewMetrics creates the reminder metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "salonbot",
				Name:      "reminders_sent_total",
				Help:      "Total number of reminder deliveries, by outcome",
			},
			[]string{"status"},
		),

		Candidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "salonbot",
				Name:      "reminder_candidates",
				Help:      "Confirmed appointments not yet reminded, as of the last pass",
			},
		),

		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "salonbot",
				Name:      "reminder_pass_duration_seconds",
				Help:      "Time spent on one scheduler pass",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
			},
		),
	}
}

func (m *Metrics) IncSent(status string) {
	m.RemindersSentTotal.WithLabelValues(status).Inc()
}
