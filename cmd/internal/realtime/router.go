package realtime

import (
	"log/slog"
	"time"

	v1 "fleetdeck/shared/contracts/push/v1"
)

// Router fans envelopes out to connections.
//
// Delivery is at-most-once and per-connection FIFO: each connection has a
// single ordered queue drained by its writer goroutine. A full queue or a
// closing connection causes a drop for that connection only; the rest of the
// fanout is unaffected.
type Router struct {
	log      *slog.Logger
	registry *Registry
}

// NewRouter constructs a Router over the registry.
func NewRouter(log *slog.Logger, registry *Registry) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, registry: registry}
}

// BroadcastGlobal delivers the envelope to every connection and returns the
// number of queues it reached.
func (rt *Router) BroadcastGlobal(env v1.Envelope) int {
	metricBroadcasts.WithLabelValues("global").Inc()
	return rt.fanout(rt.registry.All(), env)
}

// BroadcastToUser delivers the envelope to every connection the user holds.
// Unknown users and users with no connections are a silent no-op.
func (rt *Router) BroadcastToUser(userID string, env v1.Envelope) int {
	metricBroadcasts.WithLabelValues("user").Inc()
	return rt.fanout(rt.registry.ForUser(userID), env)
}

// SendStatus is a convenience for plain server notices.
func (rt *Router) SendStatus(message string) int {
	env, err := v1.New(v1.TypeStatusUpdate, v1.StatusUpdatePayload{Message: message}, time.Now().UTC())
	if err != nil {
		return 0
	}
	return rt.BroadcastGlobal(env)
}

func (rt *Router) fanout(conns []*Conn, env v1.Envelope) int {
	delivered := 0
	for _, c := range conns {
		if c.TryEnqueue(env) {
			delivered++
			continue
		}
		metricDropped.Inc()
		rt.log.Debug("ws.broadcast.drop", slog.String("conn_id", c.ID))
	}
	return delivered
}
