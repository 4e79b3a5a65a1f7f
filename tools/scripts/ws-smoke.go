// Package main provides a CI-friendly smoke test for the Fleetdeck push path.
//
// It validates:
//   - login -> token pair
//   - websocket handshake with ?token=
//   - welcome status_update
//   - ping -> pong
//   - admin broadcast fanout to two clients
//   - logout -> refresh rejection
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "fleetdeck/shared/contracts/push/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type loginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

type smokeClient struct {
	name  string
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		email    = flag.String("email", "demo@example.com", "Login email")
		password = flag.String("password", "demo123", "Login password")
		text     = flag.String("text", "smoke broadcast", "Broadcast content")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	login := mustLogin(root, *baseURL, *email, *password, *timeout)
	if *verbose {
		fmt.Printf("logged in: user=%s role=%s expires_in=%d\n", login.User.ID, login.User.Role, login.ExpiresIn)
	}

	wsTarget := wsEndpoint(*baseURL, login.AccessToken)

	a := mustConnect(root, "A", wsTarget, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(root, "B", wsTarget, *timeout)
	defer closeWS(b.conn)

	a.mustReadUntilType(root, v1.TypeStatusUpdate, *timeout)
	b.mustReadUntilType(root, v1.TypeStatusUpdate, *timeout)

	mustPingPong(root, a, *timeout)

	mustBroadcast(root, *baseURL, login.AccessToken, *text, *timeout)
	for _, c := range []*smokeClient{a, b} {
		env := c.mustReadUntilType(root, v1.TypeAgentMessage, *timeout)
		var p v1.AgentMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal agent_message payload (%s): %v", c.name, err)
		}
		if p.Content != *text {
			fatalf("broadcast content mismatch (%s): got=%q want=%q", c.name, p.Content, *text)
		}
	}

	mustLogout(root, *baseURL, login.RefreshToken, *timeout)
	mustRefreshRejected(root, *baseURL, login.RefreshToken, *timeout)

	fmt.Printf("OK: user=%s role=%s broadcast delivered to 2 clients\n", login.User.ID, login.User.Role)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func wsEndpoint(baseURL, token string) string {
	ws := strings.Replace(baseURL, "http", "ws", 1)
	return ws + "/ws?token=" + url.QueryEscape(token)
}

func mustLogin(parent context.Context, baseURL, email, password string, stepTimeout time.Duration) loginResult {
	body := map[string]string{"email": email, "password": password}
	status, data := mustPostJSON(parent, baseURL+"/auth/login", "", body, stepTimeout)
	if status != http.StatusOK {
		fatalf("login status=%d body=%s", status, data)
	}

	var res loginResult
	if err := json.Unmarshal(data, &res); err != nil {
		fatalf("unmarshal login response: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		fatalf("login missing tokens")
	}
	return res
}

func mustBroadcast(parent context.Context, baseURL, bearer, text string, stepTimeout time.Duration) {
	payload, _ := json.Marshal(v1.AgentMessagePayload{AgentID: "smoke", Content: text})
	body := map[string]any{"type": v1.TypeAgentMessage, "payload": json.RawMessage(payload)}

	status, data := mustPostJSON(parent, baseURL+"/push/broadcast", bearer, body, stepTimeout)
	if status != http.StatusOK {
		fatalf("broadcast status=%d body=%s", status, data)
	}

	var res struct {
		Delivered int `json:"delivered"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		fatalf("unmarshal broadcast response: %v", err)
	}
	if res.Delivered < 2 {
		fatalf("broadcast delivered=%d want>=2", res.Delivered)
	}
}

func mustLogout(parent context.Context, baseURL, refreshToken string, stepTimeout time.Duration) {
	status, data := mustPostJSON(parent, baseURL+"/auth/logout", "", map[string]string{"refreshToken": refreshToken}, stepTimeout)
	if status != http.StatusOK {
		fatalf("logout status=%d body=%s", status, data)
	}
}

func mustRefreshRejected(parent context.Context, baseURL, refreshToken string, stepTimeout time.Duration) {
	status, data := mustPostJSON(parent, baseURL+"/auth/refresh", "", map[string]string{"refreshToken": refreshToken}, stepTimeout)
	if status != http.StatusUnauthorized {
		fatalf("refresh after logout status=%d want=401 body=%s", status, data)
	}
}

func mustPostJSON(parent context.Context, target, bearer string, body any, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	buf, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func mustConnect(parent context.Context, name, wsTarget string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsTarget, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustPingPong(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	ping, err := v1.New(v1.TypePing, v1.PingPayload{}, time.Now().UTC())
	if err != nil {
		fatalf("build ping: %v", err)
	}
	mustWriteWithTimeout(parent, c.conn, ping, stepTimeout)
	c.mustReadUntilType(parent, v1.TypePong, stepTimeout)
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): %q", c.name, ep.Message)
			}
			// Unrelated traffic (pings, status notices) is skipped.
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
