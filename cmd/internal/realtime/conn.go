package realtime

import (
	"sync"
	"sync/atomic"

	v1 "fleetdeck/shared/contracts/push/v1"
)

// Conn represents one connected websocket client.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done signals the connection's goroutines to stop.
// - Close is idempotent.
type Conn struct {
	ID     string
	UserID string
	Email  string
	Role   string
	Send   chan v1.Envelope

	alive     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn constructs a Conn with a bounded send queue. A new connection
// starts alive.
func NewConn(id, userID, email, role string, sendQueueSize int) *Conn {
	if sendQueueSize < minSendQueueSize {
		sendQueueSize = defaultSendQueueSize
	}
	c := &Conn{
		ID:     id,
		UserID: userID,
		Email:  email,
		Role:   role,
		Send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// MarkAlive records proof of life (a pong or any inbound frame).
func (c *Conn) MarkAlive() {
	c.alive.Store(true)
}

// MarkSuspect clears the liveness flag; the connection must answer the next
// probe before the following sweep or it is dropped.
func (c *Conn) MarkSuspect() {
	c.alive.Store(false)
}

// Alive reports whether the connection has shown life since the last probe.
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// Done returns a channel that is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the connection goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// TryEnqueue offers an envelope without blocking. It reports false when the
// connection is shutting down or its queue is full.
func (c *Conn) TryEnqueue(env v1.Envelope) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
