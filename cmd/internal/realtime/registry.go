package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "fleetdeck/shared/contracts/push/v1"
)

// Registry tracks live connections and sweeps unresponsive ones.
//
// Liveness works in two steps per sweep: a connection that showed no life
// since the previous probe is terminated; every survivor is marked suspect
// and probed with an application-level ping. Answering the ping (or sending
// any frame) marks the connection alive again, so an unresponsive peer is
// gone within two intervals.
type Registry struct {
	log      *slog.Logger
	interval time.Duration

	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

// NewRegistry constructs a Registry. A nil logger falls back to slog.Default;
// a non-positive interval uses the default heartbeat interval.
func NewRegistry(log *slog.Logger, interval time.Duration) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = heartbeatInterval
	}
	return &Registry{
		log:      log,
		interval: interval,
		conns:    make(map[string]*Conn),
		byUser:   make(map[string]map[string]*Conn),
	}
}

// Add registers a connection.
func (r *Registry) Add(c *Conn) {
	if c == nil || c.ID == "" {
		return
	}

	r.mu.Lock()
	r.conns[c.ID] = c
	if c.UserID != "" {
		userConns := r.byUser[c.UserID]
		if userConns == nil {
			userConns = make(map[string]*Conn)
			r.byUser[c.UserID] = userConns
		}
		userConns[c.ID] = c
	}
	r.mu.Unlock()

	metricConnections.Inc()
	r.log.Info("ws.conn.add", slog.String("conn_id", c.ID), slog.String("user_id", c.UserID))
}

// Remove deregisters a connection and signals its shutdown. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		if userConns := r.byUser[c.UserID]; userConns != nil {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(r.byUser, c.UserID)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	// Membership removal happens before Close so broadcasters never pick up
	// a connection that is mid-teardown.
	c.Close()
	metricConnections.Dec()
	r.log.Info("ws.conn.remove", slog.String("conn_id", connID), slog.String("user_id", c.UserID))
}

// Get returns a connection by id.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	return c, ok
}

// ForUser returns the user's current connections.
func (r *Registry) ForUser(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	out := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		out = append(out, c)
	}
	return out
}

// All returns every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Run sweeps connections on the heartbeat interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now.UTC())
		}
	}
}

// Sweep terminates connections that missed the previous probe and probes the
// survivors.
func (r *Registry) Sweep(now time.Time) {
	var stale, live []*Conn

	r.mu.RLock()
	for _, c := range r.conns {
		if c.Alive() {
			live = append(live, c)
		} else {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		r.log.Info("ws.heartbeat.terminate", slog.String("conn_id", c.ID), slog.String("user_id", c.UserID))
		metricHeartbeatDrops.Inc()
		r.Remove(c.ID)
	}

	if len(live) == 0 {
		return
	}

	ping, err := v1.New(v1.TypePing, v1.PingPayload{}, now)
	if err != nil {
		return
	}
	for _, c := range live {
		c.MarkSuspect()
		if !c.TryEnqueue(ping) {
			metricDropped.Inc()
		}
	}
}
