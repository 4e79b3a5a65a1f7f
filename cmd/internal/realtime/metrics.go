package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetdeck_ws_connections",
		Help: "Currently registered websocket connections.",
	})

	metricBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetdeck_ws_broadcasts_total",
		Help: "Broadcast fanouts by scope.",
	}, []string{"scope"})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetdeck_ws_dropped_total",
		Help: "Envelopes dropped due to backpressure or shutdown.",
	})

	metricHeartbeatDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetdeck_ws_heartbeat_terminations_total",
		Help: "Connections terminated for missing heartbeats.",
	})
)
