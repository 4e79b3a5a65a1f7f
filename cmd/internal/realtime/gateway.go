package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"fleetdeck/cmd/internal/auth/token"
	v1 "fleetdeck/shared/contracts/push/v1"
)

// Authenticator verifies an access token into an identity. The auth gateway
// satisfies this.
type Authenticator interface {
	Authenticate(accessToken string) (token.Identity, error)
}

// Gateway is the WebSocket entrypoint for Fleetdeck push.
//
// The handshake carries the access token in the ?token= query parameter. A
// bad token still gets an upgraded connection, so the client receives an
// error envelope before the close frame instead of a bare HTTP failure.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	router   *Router
	auth     Authenticator

	originPatterns []string
	devInsecure    bool

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with defaults from the environment.
//
// Optional knobs:
//   - FLEETDECK_WS_ORIGIN_PATTERNS (CSV of host patterns for cross-origin upgrades)
//   - FLEETDECK_WS_DEV_INSECURE (dev-only, skips origin verification)
//   - FLEETDECK_WS_WRITE_TIMEOUT, FLEETDECK_WS_READ_IDLE_TIMEOUT
//   - FLEETDECK_WS_SEND_QUEUE
//   - FLEETDECK_WS_RATE_EVENTS, FLEETDECK_WS_RATE_WINDOW
func NewGateway(log *slog.Logger, registry *Registry, router *Router, auth Authenticator) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	g := &Gateway{
		log:      log,
		registry: registry,
		router:   router,
		auth:     auth,

		writeTimeout:    envDuration("FLEETDECK_WS_WRITE_TIMEOUT", defaultWriteTimeout),
		readIdleTimeout: envDuration("FLEETDECK_WS_READ_IDLE_TIMEOUT", defaultReadIdle),
		sendQueueSize:   envInt("FLEETDECK_WS_SEND_QUEUE", defaultSendQueueSize),

		rateEvents: envInt("FLEETDECK_WS_RATE_EVENTS", rateLimitEvents),
		rateWindow: envDuration("FLEETDECK_WS_RATE_WINDOW", rateLimitWindow),
	}
	if g.sendQueueSize < minSendQueueSize {
		g.sendQueueSize = minSendQueueSize
	}

	g.originPatterns = envCSV("FLEETDECK_WS_ORIGIN_PATTERNS", "localhost,127.0.0.1")
	g.devInsecure = strings.EqualFold(strings.TrimSpace(os.Getenv("FLEETDECK_WS_DEV_INSECURE")), "true")

	return g
}

// ServeHTTP adapter so the gateway mounts as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	// Identity binding is optional: a handshake without a token is admitted
	// unbound and receives global broadcasts only.
	var id token.Identity
	if raw := r.URL.Query().Get("token"); raw != "" {
		id, err = g.auth.Authenticate(raw)
		if err != nil {
			g.log.Info("ws.reject.token", "err", err, "remote", r.RemoteAddr)
			g.rejectHandshake(r.Context(), conn, err)
			return
		}
	}

	client := NewConn(NewConnID(), id.UserID, id.Email, id.Role, g.sendQueueSize)
	g.registry.Add(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send; registry removal
	// happens first so broadcasters stop seeing the connection.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.registry.Remove(client.ID)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// The heartbeat sweep removes the connection from the registry and closes
	// its done channel; force the socket closed so the read loop unblocks and
	// the peer cannot linger half-registered.
	go func() {
		select {
		case <-ctx.Done():
		case <-client.Done():
			shutdown(websocket.StatusGoingAway, "heartbeat timeout")
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", client.ID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	g.sendWelcome(client)

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", client.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(client, "too many messages")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, err.Error())
			continue readLoop
		}

		// Any well-formed frame proves the peer is alive.
		client.MarkAlive()

		switch env.Type {
		case v1.TypePing:
			pong, err := v1.New(v1.TypePong, v1.PongPayload{}, now)
			if err == nil && !client.TryEnqueue(pong) {
				metricDropped.Inc()
			}

		case v1.TypePong:
			// Liveness already recorded above.

		case v1.TypeSubscribe:
			g.onSubscribe(client, env, now)

		default:
			g.trySendError(client, fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")

	select {
	case <-writerDone:
	case <-time.After(wsCloseGrace):
	}
}

// rejectHandshake reports the auth failure in-band, then closes.
func (g *Gateway) rejectHandshake(ctx context.Context, conn *websocket.Conn, authErr error) {
	msg := "authentication failed"
	switch {
	case errors.Is(authErr, token.ErrExpired):
		msg = "token expired"
	case errors.Is(authErr, token.ErrWrongPurpose):
		msg = "wrong token purpose"
	case errors.Is(authErr, token.ErrMalformed):
		msg = "token malformed"
	}

	env, err := v1.New(v1.TypeError, v1.ErrorPayload{Message: msg}, time.Now().UTC())
	if err == nil {
		_ = writeEnvelope(ctx, conn, env, defaultWriteTimeout)
	}
	_ = conn.Close(websocket.StatusPolicyViolation, "authentication failed")
}

func (g *Gateway) sendWelcome(client *Conn) {
	env, err := v1.New(v1.TypeStatusUpdate, v1.StatusUpdatePayload{Message: "connected"}, time.Now().UTC())
	if err != nil {
		return
	}
	if !client.TryEnqueue(env) {
		metricDropped.Inc()
	}
}

func (g *Gateway) onSubscribe(client *Conn, env v1.Envelope, now time.Time) {
	var p v1.SubscribePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			g.trySendError(client, "invalid payload")
			return
		}
	}

	msg := "subscribed"
	if p.AgentID != "" {
		msg = "subscribed: " + p.AgentID
	}
	ack, err := v1.New(v1.TypeStatusUpdate, v1.StatusUpdatePayload{AgentID: p.AgentID, Message: msg}, now)
	if err == nil && !client.TryEnqueue(ack) {
		metricDropped.Inc()
	}
}

func (g *Gateway) trySendError(client *Conn, msg string) {
	env, err := v1.New(v1.TypeError, v1.ErrorPayload{Message: msg}, time.Now().UTC())
	if err != nil {
		return
	}
	if !client.TryEnqueue(env) {
		metricDropped.Inc()
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || strings.Contains(err.Error(), "unexpected end of JSON input") {
		return readErrBadJSON
	}
	return readErrUnknown
}
