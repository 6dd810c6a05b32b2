package reconciler

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the reconciler's Prometheus collectors.
type Metrics struct {
	refreshes  *prometheus.CounterVec
	operations *prometheus.CounterVec
	markers    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "reconciler",
			Name:      "refreshes_total",
			Help:      "Refresh runs by result (ok, error, skipped, not_ready).",
		}, []string{"result"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courierloc",
			Subsystem: "reconciler",
			Name:      "marker_operations_total",
			Help:      "Marker operations applied to the map by kind.",
		}, []string{"op"}),
		markers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "courierloc",
			Subsystem: "reconciler",
			Name:      "markers",
			Help:      "Couriers currently displayed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.operations, m.markers)
	}
	return m
}
