package server

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/audit"
	"github.com/workspace/codexmonitord/internal/dispatcher"
	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/registry"
	"github.com/workspace/codexmonitord/internal/sessions"
)

func newTestDeps(t *testing.T) *ops.Deps {
	t.Helper()
	dataDir := t.TempDir()
	reg, err := registry.Open(dataDir)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	settings, err := appsettings.Open(dataDir)
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	auditStore, err := audit.Open(filepath.Join(dataDir, "audit.db"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	bus := eventbus.New(eventbus.DefaultCapacity)
	t.Cleanup(bus.Close)
	sessMgr := sessions.New(bus, settings, nil)
	t.Cleanup(sessMgr.StopAll)
	return &ops.Deps{
		Registry: reg,
		Sessions: sessMgr,
		Bus:      bus,
		Settings: settings,
		Audit:    auditStore,
		Version:  "test",
	}
}

func startTestServer(t *testing.T, token string, insecure bool) (*Server, *eventbus.Bus) {
	t.Helper()
	deps := newTestDeps(t)
	d := dispatcher.New(deps)
	srv := New(Config{
		Listen:         "127.0.0.1:0",
		Token:          token,
		InsecureNoAuth: insecure,
		Dispatcher:     d,
		Bus:            deps.Bus,
	})
	ready := make(chan struct{})
	go func() {
		go func() {
			for srv.Addr() == "" {
				time.Sleep(time.Millisecond)
			}
			close(ready)
		}()
		_ = srv.Start()
	}()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server never bound a listener")
	}
	t.Cleanup(srv.Stop)
	return srv, deps.Bus
}

type wireClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, addr string) *wireClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wireClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *wireClient) send(id uint64, method string, params any) {
	c.t.Helper()
	req := map[string]any{"id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal request: %v", err)
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("write request: %v", err)
	}
}

func (c *wireClient) readLine() map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read response: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		c.t.Fatalf("unmarshal response %q: %v", line, err)
	}
	return msg
}

func TestUnauthenticatedConnectionRejectsNonAuthMethods(t *testing.T) {
	srv, _ := startTestServer(t, "secret", false)
	c := dialClient(t, srv.Addr())

	c.send(1, "ping", nil)
	resp := c.readLine()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	if errObj["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %+v", errObj)
	}
}

func TestAuthWithCorrectTokenUnlocksRequests(t *testing.T) {
	srv, _ := startTestServer(t, "secret", false)
	c := dialClient(t, srv.Addr())

	c.send(1, "auth", "secret")
	resp := c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected successful auth, got %+v", resp)
	}

	c.send(2, "ping", nil)
	resp = c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected ping to succeed post-auth, got %+v", resp)
	}
}

func TestAuthWithObjectTokenForm(t *testing.T) {
	srv, _ := startTestServer(t, "secret", false)
	c := dialClient(t, srv.Addr())

	c.send(1, "auth", map[string]string{"token": "secret"})
	resp := c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected successful auth, got %+v", resp)
	}
}

func TestAuthWithWrongTokenFails(t *testing.T) {
	srv, _ := startTestServer(t, "secret", false)
	c := dialClient(t, srv.Addr())

	c.send(1, "auth", "wrong")
	resp := c.readLine()
	errObj, ok := resp["error"].(map[string]any)
	if !ok || errObj["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %+v", resp)
	}
}

func TestInsecureNoAuthSkipsHandshake(t *testing.T) {
	srv, _ := startTestServer(t, "", true)
	c := dialClient(t, srv.Addr())

	c.send(1, "ping", nil)
	resp := c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected ping to succeed without auth, got %+v", resp)
	}
}

func TestRepeatedAuthAfterSuccessIsNoop(t *testing.T) {
	srv, _ := startTestServer(t, "secret", false)
	c := dialClient(t, srv.Addr())

	c.send(1, "auth", "secret")
	c.readLine()

	c.send(2, "auth", "secret")
	resp := c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected repeated auth to be a no-op success, got %+v", resp)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv, _ := startTestServer(t, "", true)
	c := dialClient(t, srv.Addr())

	c.send(1, "totally_bogus_method", nil)
	resp := c.readLine()
	errObj, ok := resp["error"].(map[string]any)
	if !ok || errObj["code"] != "METHOD_NOT_FOUND" {
		t.Fatalf("expected METHOD_NOT_FOUND, got %+v", resp)
	}
}

func TestMalformedJSONLineIsSilentlyDropped(t *testing.T) {
	srv, _ := startTestServer(t, "", true)
	c := dialClient(t, srv.Addr())

	if _, err := c.conn.Write([]byte("not json at all\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.send(1, "ping", nil)
	resp := c.readLine()
	if result, _ := resp["result"].(map[string]any); result == nil || result["ok"] != true {
		t.Fatalf("expected the malformed line to be skipped and ping to succeed, got %+v", resp)
	}
}

func TestTerminalEventIsForwardedAsNotification(t *testing.T) {
	srv, bus := startTestServer(t, "", true)
	c := dialClient(t, srv.Addr())

	// Authenticating (trivially, since insecure mode is on) starts this
	// connection's subscriber; round-trip a ping first so Publish below is
	// guaranteed to race against an already-subscribed reader.
	c.send(1, "ping", nil)
	c.readLine()

	bus.Publish(eventbus.Event{
		Kind:        eventbus.KindTerminalOutput,
		WorkspaceID: "ws1",
		Terminal:    eventbus.TerminalPayload{Raw: json.RawMessage(`{"line":"hi"}`)},
	})

	msg := c.readLine()
	if msg["method"] != "terminal-event" {
		t.Fatalf("expected a terminal-event notification, got %+v", msg)
	}
	params, _ := msg["params"].(map[string]any)
	if params == nil || params["workspace_id"] != "ws1" {
		t.Fatalf("unexpected notification params: %+v", msg)
	}
}

func TestAppServerEventIsForwardedAsNotification(t *testing.T) {
	srv, bus := startTestServer(t, "", true)
	c := dialClient(t, srv.Addr())

	c.send(1, "ping", nil)
	c.readLine()

	bus.Publish(eventbus.Event{
		Kind:        eventbus.KindAppServer,
		WorkspaceID: "ws1",
		Message:     eventbus.Message{Method: "codex/something"},
	})

	msg := c.readLine()
	if msg["method"] != "app-server-event" {
		t.Fatalf("expected an app-server-event notification, got %+v", msg)
	}
	params, _ := msg["params"].(map[string]any)
	if params == nil || params["workspace_id"] != "ws1" {
		t.Fatalf("unexpected notification params: %+v", msg)
	}
}
