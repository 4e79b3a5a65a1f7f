package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"fleetdeck/cmd/internal/auth/token"
	v1 "fleetdeck/shared/contracts/push/v1"
)

type staticAuth struct{}

func (staticAuth) Authenticate(accessToken string) (token.Identity, error) {
	if accessToken == "valid-token" {
		return token.Identity{UserID: "u1", Email: "demo@example.com", Role: "admin"}, nil
	}
	return token.Identity{}, token.ErrMalformed
}

func newTestGateway(t *testing.T) (*httptest.Server, *Registry, *Router) {
	t.Helper()

	registry := NewRegistry(nil, time.Second)
	router := NewRouter(nil, registry)
	gw := NewGateway(nil, registry, router, staticAuth{})

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, registry, router
}

func wsURL(srv *httptest.Server, query string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + query
}

func readWire(t *testing.T, ctx context.Context, conn *websocket.Conn) v1.Envelope {
	t.Helper()

	env, err := readEnvelope(ctx, conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestHandshakeWelcome(t *testing.T) {
	t.Parallel()

	srv, registry, _ := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=valid-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeStatusUpdate {
		t.Fatalf("welcome type=%q want=%q", env.Type, v1.TypeStatusUpdate)
	}

	// The connection is registered under the token's user.
	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(registry.ForUser("u1")); got != 1 {
		t.Fatalf("u1 conns=%d want=1", got)
	}
}

func TestHandshakeBadToken(t *testing.T) {
	t.Parallel()

	srv, registry, _ := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=garbage"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// The upgrade succeeds so the failure can be reported in-band.
	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("type=%q want=%q", env.Type, v1.TypeError)
	}

	// Then the server closes.
	if _, err := readEnvelope(ctx, conn); err == nil {
		t.Fatal("expected close after error envelope")
	}
	if registry.Count() != 0 {
		t.Fatalf("rejected conn was registered: count=%d", registry.Count())
	}
}

func TestHandshakeWithoutTokenAdmitsUnbound(t *testing.T) {
	t.Parallel()

	srv, registry, router := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeStatusUpdate {
		t.Fatalf("welcome type=%q want=%q", env.Type, v1.TypeStatusUpdate)
	}

	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := registry.Count(); got != 1 {
		t.Fatalf("count=%d want=1", got)
	}
	if got := len(registry.ForUser("u1")); got != 0 {
		t.Fatalf("unbound conn indexed under u1: %d", got)
	}

	// User-scoped traffic skips the unbound connection; global reaches it.
	notif, err := v1.New(v1.TypeNotification, v1.NotificationPayload{Title: "personal"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := router.BroadcastToUser("u1", notif); got != 0 {
		t.Fatalf("user delivery=%d want=0", got)
	}

	status, err := v1.New(v1.TypeStatusUpdate, v1.StatusUpdatePayload{Message: "all"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := router.BroadcastGlobal(status); got != 1 {
		t.Fatalf("global delivery=%d want=1", got)
	}
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=valid-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	_ = readWire(t, ctx, conn) // welcome

	ping, err := v1.New(v1.TypePing, v1.PingPayload{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := writeEnvelope(ctx, conn, ping, defaultWriteTimeout); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypePong {
		t.Fatalf("type=%q want=%q", env.Type, v1.TypePong)
	}
}

func TestUnknownTypeGetsErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=valid-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	_ = readWire(t, ctx, conn) // welcome

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"bogus","payload":{},"timestamp":"2026-01-01T00:00:00Z"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("type=%q want=%q", env.Type, v1.TypeError)
	}
}

func TestSweptConnectionIsClosedServerSide(t *testing.T) {
	t.Parallel()

	srv, registry, _ := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=valid-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	_ = readWire(t, ctx, conn) // welcome

	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	// First sweep marks the connection suspect; the client never answers the
	// probe, so the second sweep terminates it.
	registry.Sweep(time.Now().UTC())
	registry.Sweep(time.Now().UTC())
	if got := registry.Count(); got != 0 {
		t.Fatalf("count=%d want=0 after two unanswered sweeps", got)
	}

	// The socket itself must be closed, not just deregistered. Drain any
	// already-queued frames (the probe) until the close arrives.
	for {
		_, err := readEnvelope(ctx, conn)
		if err == nil {
			continue
		}
		if websocket.CloseStatus(err) == -1 && ctx.Err() != nil {
			t.Fatal("server never closed the swept connection")
		}
		break
	}
}

func TestBroadcastReachesDialedClient(t *testing.T) {
	t.Parallel()

	srv, registry, router := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=valid-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	_ = readWire(t, ctx, conn) // welcome

	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env, err := v1.New(v1.TypeTaskUpdate, v1.TaskUpdatePayload{TaskID: "t1", State: "done"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := router.BroadcastGlobal(env); got != 1 {
		t.Fatalf("delivered=%d want=1", got)
	}

	got := readWire(t, ctx, conn)
	if got.Type != v1.TypeTaskUpdate {
		t.Fatalf("type=%q want=%q", got.Type, v1.TypeTaskUpdate)
	}
}
