// Package metrics exposes Prometheus instrumentation for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "teamsync"

// Metrics bundles the collectors mutated by the session server, broadcaster,
// and liveness monitor. Construct one per server instance so tests can use
// isolated registries.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	OpenRooms         prometheus.Gauge
	EnvelopesTotal    *prometheus.CounterVec
	MalformedTotal    prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	EvictionsTotal    prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections.",
		}),
		OpenRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_rooms",
			Help:      "Number of rooms with at least one member.",
		}),
		EnvelopesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Inbound envelopes dispatched, by type.",
		}, []string{"type"}),
		MalformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_envelopes_total",
			Help:      "Inbound payloads dropped as unparseable or unknown.",
		}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts fanned out.",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-peer send failures during broadcast.",
		}),
		EvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Connections evicted by the liveness monitor.",
		}),
	}
}
