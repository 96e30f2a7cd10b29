package relay

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons.
const (
	DropReasonNoPeers     = "no_peers"
	DropReasonBufferFull  = "send_buffer_full"
	DropReasonRateLimited = "rate_limited"
	DropReasonMalformed   = "malformed"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Joins       prometheus.Counter
	Relayed     prometheus.Counter
	Dropped     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatterbox",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open signaling connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatterbox",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatterbox",
			Subsystem: "relay",
			Name:      "joins_total",
			Help:      "join-call requests processed.",
		}),
		Relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatterbox",
			Subsystem: "relay",
			Name:      "signals_relayed_total",
			Help:      "Signal deliveries to room members.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatterbox",
			Subsystem: "relay",
			Name:      "signals_dropped_total",
			Help:      "Messages that reached no recipient, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Joins, m.Relayed, m.Dropped)
	}
	return m
}
