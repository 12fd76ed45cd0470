package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/audit"
	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/registry"
	"github.com/workspace/codexmonitord/internal/rpcerr"
	"github.com/workspace/codexmonitord/internal/sessions"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
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
	t.Cleanup(func() { _ = auditStore.Close() })

	bus := eventbus.New(eventbus.DefaultCapacity)
	t.Cleanup(bus.Close)

	sessMgr := sessions.New(bus, settings, nil)
	t.Cleanup(sessMgr.StopAll)

	deps := &ops.Deps{
		Registry: reg,
		Sessions: sessMgr,
		Bus:      bus,
		Settings: settings,
		Audit:    auditStore,
		Version:  "test",
	}
	return New(deps)
}

func TestPingReturnsOK(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != (ok{OK: true}) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDaemonInfoReportsVersion(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch(context.Background(), "daemon_info", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	info, ok := result.(ops.DaemonInfo)
	if !ok {
		t.Fatalf("expected ops.DaemonInfo, got %T", result)
	}
	if info.Version != "test" {
		t.Fatalf("unexpected version: %+v", info)
	}
	if info.Mode != "token" {
		t.Fatalf("expected token auth mode by default, got %q", info.Mode)
	}
}

func TestDispatchUnknownMethodIsMethodNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "no_such_method", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, rpcerr.ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
	wire := rpcerr.Classify(err)
	if wire.Code != rpcerr.CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %s", wire.Code)
	}
}

func TestDispatchMissingRequiredParamIsInvalidParams(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "is_workspace_path_dir", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for missing required param")
	}
	wire := rpcerr.Classify(err)
	if wire.Code != rpcerr.CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %s: %s", wire.Code, wire.Message)
	}
}

func TestDispatchMalformedParamsJSONIsRejected(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "ping", json.RawMessage(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed params")
	}
	// Params that aren't a JSON object at all fail at parampluck.Parse,
	// before any handler-specific InvalidParamsError can be produced; it
	// still classifies to a non-empty wire error either way.
	wire := rpcerr.Classify(err)
	if wire.Message == "" {
		t.Fatalf("expected a non-empty wire error message")
	}
}

func TestListWorkspacesOnEmptyRegistryReturnsEmpty(t *testing.T) {
	d := newTestDispatcher(t)
	result, err := d.Dispatch(context.Background(), "list_workspaces", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	infos, ok := result.([]ops.WorkspaceInfo)
	if !ok {
		t.Fatalf("expected []ops.WorkspaceInfo, got %T", result)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no workspaces, got %+v", infos)
	}
}

func TestMethodsIncludesFullTable(t *testing.T) {
	d := newTestDispatcher(t)
	methods := d.Methods()
	want := []string{
		"ping", "daemon_info", "daemon_shutdown",
		"list_workspaces", "add_workspace", "start_thread", "send_user_message",
		"git_status", "local_usage_snapshot", "list_prompts",
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("expected method %q to be registered", w)
		}
	}
}
