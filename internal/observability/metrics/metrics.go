package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for scheduling flows.
type BookingMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	conflictsTotal      *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	outboxDelivered     prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "appointments_created_total",
			Help:      "Total appointments created",
		}, []string{"status"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Create or reschedule attempts rejected because the slot was taken",
		}, []string{"operation"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status changes",
		}, []string{"from", "to"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "availability_latency_seconds",
			Help:      "Latency of availability lookups",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		outboxDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "outbox_delivered_total",
			Help:      "Booking events delivered from the outbox",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.transitionsTotal, m.availabilityLatency, m.outboxDelivered)
	return m
}

func (m *BookingMetrics) ObserveCreated(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(operation).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveAvailability(ok bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.availabilityLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) AddDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxDelivered.Add(float64(n))
}
