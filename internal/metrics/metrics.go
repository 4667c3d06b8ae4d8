package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "appointments_created_total",
			Help:      "Count of pending appointments created.",
		},
	)

	appointmentsConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "appointments_confirmed_total",
			Help:      "Count of appointments confirmed by users.",
		},
	)

	appointmentsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "appointments_cancelled_total",
			Help:      "Count of appointments cancelled, by lifecycle stage.",
		},
		[]string{"stage"},
	)

	calendarCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbot",
			Name:      "calendar_sync_total",
			Help:      "Count of remote calendar calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentsCreated, appointmentsConfirmed, appointmentsCancelled, calendarCalls)
	})
}

func IncAppointmentCreated() {
	appointmentsCreated.Inc()
}

func IncAppointmentConfirmed() {
	appointmentsConfirmed.Inc()
}

// IncAppointmentCancelled takes "pending" or "confirmed".
func IncAppointmentCancelled(stage string) {
	appointmentsCancelled.WithLabelValues(stage).Inc()
}

func IncCalendarCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	calendarCalls.WithLabelValues(op, result).Inc()
}
