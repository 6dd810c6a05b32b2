package tracker

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the reporting machine's Prometheus collectors.
type Metrics struct {
	watchActive       prometheus.Gauge
	positions         prometheus.Counter
	forwardFailures   prometheus.Counter
	acquisitionErrors *prometheus.CounterVec
	retries           prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		watchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "courierloc",
			Subsystem: "tracker",
			Name:      "watch_active",
			Help:      "1 while a location watch is held.",
		}),
		positions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "tracker",
			Name:      "positions_total",
			Help:      "Position samples received from the device.",
		}),
		forwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "tracker",
			Name:      "forward_failures_total",
			Help:      "Position updates the server did not accept.",
		}),
		acquisitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "tracker",
			Name:      "acquisition_errors_total",
			Help:      "Location acquisition errors by code.",
		}, []string{"code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "tracker",
			Name:      "retries_total",
			Help:      "Watch re-acquisitions after a transient error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.watchActive, m.positions, m.forwardFailures, m.acquisitionErrors, m.retries)
	}
	return m
}

func (m *Metrics) acquisitionError(code int) {
	m.acquisitionErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}
