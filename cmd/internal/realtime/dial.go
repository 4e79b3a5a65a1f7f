package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	v1 "fleetdeck/shared/contracts/push/v1"
)

// DialState is the dialer's connection state.
type DialState int32

const (
	StateDisconnected DialState = iota
	StateConnecting
	StateOpen
)

func (s DialState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Backoff is the reconnect schedule: Base, Base*Multiplier, Base*Multiplier^2,
// ... capped at Max, giving up after MaxAttempts consecutive failures.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the standard reconnect schedule: 1s base, doubling,
// 30s cap, five attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Multiplier:  2,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt)))
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Handler consumes one received envelope.
type Handler func(env v1.Envelope)

// TokenFunc supplies the current access token before each dial attempt, so a
// reconnect after token expiry can pick up a refreshed one.
type TokenFunc func(ctx context.Context) (string, error)

// Dialer is a reconnecting push client.
//
// Handlers are registered per envelope type with Subscribe and invoked from
// the read loop, so they must not block. Pings from the server are answered
// automatically.
type Dialer struct {
	log     *slog.Logger
	wsURL   string
	tokenFn TokenFunc
	backoff Backoff

	state atomic.Int32

	mu      sync.Mutex
	subs    map[string]map[int]Handler
	nextSub int
}

// NewDialer constructs a Dialer for the given ws:// or wss:// endpoint.
func NewDialer(log *slog.Logger, wsURL string, tokenFn TokenFunc, backoff Backoff) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	if backoff.Base <= 0 {
		backoff = DefaultBackoff()
	}
	return &Dialer{
		log:     log,
		wsURL:   wsURL,
		tokenFn: tokenFn,
		backoff: backoff,
		subs:    make(map[string]map[int]Handler),
	}
}

// State returns the current connection state.
func (d *Dialer) State() DialState {
	return DialState(d.state.Load())
}

// Subscribe registers a handler for an envelope type and returns a
// subscription id for Unsubscribe.
func (d *Dialer) Subscribe(msgType string, h Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextSub++
	id := d.nextSub
	if d.subs[msgType] == nil {
		d.subs[msgType] = make(map[int]Handler)
	}
	d.subs[msgType][id] = h
	return id
}

// Unsubscribe removes a handler registered with Subscribe.
func (d *Dialer) Unsubscribe(msgType string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if handlers := d.subs[msgType]; handlers != nil {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(d.subs, msgType)
		}
	}
}

// Run connects and keeps the session alive, reconnecting on failure per the
// backoff schedule. It returns nil when ctx is done, or an error once the
// schedule is exhausted.
func (d *Dialer) Run(ctx context.Context) error {
	defer d.state.Store(int32(StateDisconnected))

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		d.state.Store(int32(StateConnecting))
		conn, err := d.dial(ctx)
		if err != nil {
			failures++
			d.log.Info("ws.dial.fail", "attempt", failures, "err", err)
			if d.backoff.MaxAttempts > 0 && failures >= d.backoff.MaxAttempts {
				d.state.Store(int32(StateDisconnected))
				return fmt.Errorf("giving up after %d attempts: %w", failures, err)
			}

			d.state.Store(int32(StateDisconnected))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.backoff.Delay(failures - 1)):
			}
			continue
		}

		d.state.Store(int32(StateOpen))
		failures = 0

		d.readPump(ctx, conn)
		d.state.Store(int32(StateDisconnected))
		d.log.Info("ws.session.end")
	}
}

func (d *Dialer) dial(ctx context.Context) (*websocket.Conn, error) {
	target := d.wsURL
	if d.tokenFn != nil {
		tok, err := d.tokenFn(ctx)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		u, err := url.Parse(d.wsURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

func (d *Dialer) readPump(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			return
		}
		if env.Validate() != nil {
			continue
		}

		if env.Type == v1.TypePing {
			pong, err := v1.New(v1.TypePong, v1.PongPayload{}, time.Now().UTC())
			if err == nil {
				if err := writeEnvelope(ctx, conn, pong, defaultWriteTimeout); err != nil {
					return
				}
			}
		}

		d.dispatch(env)
	}
}

func (d *Dialer) dispatch(env v1.Envelope) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.subs[env.Type]))
	for _, h := range d.subs[env.Type] {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}
