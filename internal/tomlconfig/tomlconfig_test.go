package tomlconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	policy, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.ApprovalPolicy != "" {
		t.Fatalf("expected zero policy, got %+v", policy)
	}
}

func TestLoadBareSandboxMode(t *testing.T) {
	path := writeConfig(t, `approval_policy = "on-request"
sandbox_mode = "workspace-write"
`)
	policy, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.ApprovalPolicy != "on-request" {
		t.Fatalf("unexpected approval_policy: %q", policy.ApprovalPolicy)
	}
	if policy.Sandbox.Mode != "workspace-write" {
		t.Fatalf("unexpected sandbox mode: %+v", policy.Sandbox)
	}
}

func TestLoadInlineTableSandboxMode(t *testing.T) {
	path := writeConfig(t, `approval_policy = "never"
sandbox_mode = { mode = "workspace-write", network_access = true, writable_roots = ["/tmp", "/data"] }
`)
	policy, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.Sandbox.Mode != "workspace-write" || !policy.Sandbox.NetworkAccess {
		t.Fatalf("unexpected sandbox: %+v", policy.Sandbox)
	}
	if len(policy.Sandbox.WritableRoots) != 2 || policy.Sandbox.WritableRoots[1] != "/data" {
		t.Fatalf("unexpected writable roots: %v", policy.Sandbox.WritableRoots)
	}
}
