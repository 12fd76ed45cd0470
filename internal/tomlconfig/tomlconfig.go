// Package tomlconfig reads the small global TOML configuration file
// (§4G): two top-level keys, approval_policy and sandbox_mode, the latter
// optionally an inline table rather than a bare string. This is the only
// corner of the agent's TOML configuration the daemon itself interprets;
// everything else is opaque to it and left for the child/UI to manage.
package tomlconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// SandboxMode is either a bare mode name ("read-only", "workspace-write",
// "danger-full-access") or an inline table refining workspace-write with
// extra permissions.
type SandboxMode struct {
	Mode                string
	NetworkAccess       bool
	ExcludeTmpdirEnvVar bool
	ExcludeSlashTmp     bool
	WritableRoots       []string
}

// Policy is the pair of settings the daemon merges into thread/start.
type Policy struct {
	ApprovalPolicy string
	Sandbox        SandboxMode
}

// Load reads path and extracts approval_policy/sandbox_mode. A missing
// file is not an error: it yields the zero Policy (caller then falls back
// to the agent's own defaults).
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Policy{}, nil
		}
		return Policy{}, fmt.Errorf("read %s: %w", path, err)
	}

	var doc struct {
		ApprovalPolicy string `toml:"approval_policy"`
		SandboxMode    any    `toml:"sandbox_mode"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("parse %s: %w", path, err)
	}

	policy := Policy{ApprovalPolicy: doc.ApprovalPolicy}
	switch v := doc.SandboxMode.(type) {
	case nil:
		// unset; leave Sandbox zero-valued
	case string:
		policy.Sandbox = SandboxMode{Mode: v}
	case map[string]any:
		policy.Sandbox = sandboxFromTable(v)
	default:
		return Policy{}, fmt.Errorf("%s: sandbox_mode must be a string or inline table, got %T", path, v)
	}
	return policy, nil
}

func sandboxFromTable(t map[string]any) SandboxMode {
	sm := SandboxMode{}
	if mode, ok := t["mode"].(string); ok {
		sm.Mode = mode
	}
	if b, ok := t["network_access"].(bool); ok {
		sm.NetworkAccess = b
	}
	if b, ok := t["exclude_tmpdir_env_var"].(bool); ok {
		sm.ExcludeTmpdirEnvVar = b
	}
	if b, ok := t["exclude_slash_tmp"].(bool); ok {
		sm.ExcludeSlashTmp = b
	}
	if roots, ok := t["writable_roots"].([]any); ok {
		for _, r := range roots {
			if s, ok := r.(string); ok {
				sm.WritableRoots = append(sm.WritableRoots, s)
			}
		}
	}
	return sm
}
