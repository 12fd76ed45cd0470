package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/workspace/codexmonitord/internal/child"
	"github.com/workspace/codexmonitord/internal/eventbus"
)

func spawnMirror(t *testing.T) *child.Process {
	t.Helper()
	proc, err := child.Spawn(child.Config{Bin: "cat", WorkDir: "."})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	t.Cleanup(func() { proc.Stop() })
	return proc
}

func TestSendRequestRoundTrip(t *testing.T) {
	bus := eventbus.New(32)
	sess := New("w1", spawnMirror(t), bus, nil)
	sess.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := sess.SendRequest(ctx, "thread/start", map[string]string{"cwd": "/tmp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = result // "cat" mirrors the request itself as the id-matching line; result may be empty.
}

func TestChildExitFailsPendingRequests(t *testing.T) {
	bus := eventbus.New(32)
	proc, err := child.Spawn(child.Config{Bin: "true", WorkDir: "."})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	sess := New("w1", proc, bus, nil)
	sess.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = sess.SendRequest(ctx, "thread/start", nil)
	if err != ErrChildExited {
		t.Fatalf("expected ErrChildExited, got %v", err)
	}
}

func TestReaderClassifiesNotificationsAndTerminalEvents(t *testing.T) {
	bus := eventbus.New(32)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	script := `printf '%s\n' '{"method":"codex/event","params":{"workspaceId":"w1"}}'
printf '%s\n' '{"method":"terminal/output","params":{"terminalId":"t1","chunk":"hi"}}'
printf '%s\n' 'not json'
`
	proc, err := child.Spawn(child.Config{Bin: "sh", Args: []string{"-c", script}, WorkDir: "."})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	sess := New("w1", proc, bus, nil)
	sess.Start()
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev1, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("recv 1: %v", err)
	}
	if ev1.Kind != eventbus.KindAppServer || ev1.Message.Method != "codex/event" {
		t.Fatalf("unexpected first event: %+v", ev1)
	}

	ev2, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("recv 2: %v", err)
	}
	if ev2.Kind != eventbus.KindTerminalOutput {
		t.Fatalf("unexpected second event: %+v", ev2)
	}
}

func TestServerInitiatedRequestCarriesBindingEcho(t *testing.T) {
	bus := eventbus.New(32)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	script := `printf '%s\n' '{"id":42,"method":"approval/request","params":{}}'
cat
`
	proc, err := child.Spawn(child.Config{Bin: "sh", Args: []string{"-c", script}, WorkDir: "."})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	sess := New("w1", proc, bus, nil)
	sess.Start()
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if ev.Message.RequestWorkspaceID != "w1" {
		t.Fatalf("expected requestWorkspaceId=w1, got %+v", ev.Message)
	}
	var echoID int
	if err := json.Unmarshal(ev.Message.RequestIDEcho, &echoID); err != nil || echoID != 42 {
		t.Fatalf("expected requestIdEcho=42, got %s (err=%v)", ev.Message.RequestIDEcho, err)
	}
}
