// Package ops implements the domain operations of §4H: thread/turn/review
// routing, worktree lifecycle, git/github CLI wrappers, the background-
// prompt helper, and the smaller model/skills/apps/account/usage getters.
// Every operation is built on top of a Session (internal/session, reached
// through internal/sessions) and the Registry (internal/registry); none of
// them talks to the wire protocol directly, so internal/dispatcher can
// unit-test the mapping from method name to operation independently of
// internal/server's framing.
package ops

import (
	"fmt"
	"log/slog"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/audit"
	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/registry"
	"github.com/workspace/codexmonitord/internal/sessions"
	"github.com/workspace/codexmonitord/internal/tomlconfig"
)

// Deps bundles every collaborator the domain operations need. Handlers in
// internal/dispatcher hold one Deps and call its methods; Deps itself holds
// no request-scoped state.
type Deps struct {
	Registry     *registry.Registry
	Sessions     *sessions.Manager
	Bus          *eventbus.Bus
	Settings     *appsettings.Store
	Audit        *audit.Store
	PolicyPath   string // path to the global approval_policy/sandbox_mode TOML file
	PromptsDir   string // directory holding saved prompt snippets
	Log          *slog.Logger

	Version        string
	InsecureNoAuth bool
	ShutdownFunc   func() // invoked by daemon_shutdown after the grace period
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// requireEntry is the common "look up a registered workspace or fail"
// preamble shared by nearly every operation.
func (d *Deps) requireEntry(workspaceID string) (registry.Entry, error) {
	e, ok := d.Registry.Get(workspaceID)
	if !ok {
		return registry.Entry{}, fmt.Errorf("unknown workspace %q", workspaceID)
	}
	return e, nil
}

func (d *Deps) loadPolicy() tomlconfig.Policy {
	if d.PolicyPath == "" {
		return tomlconfig.Policy{}
	}
	policy, err := tomlconfig.Load(d.PolicyPath)
	if err != nil {
		d.logger().Warn("failed to load approval/sandbox policy", "path", d.PolicyPath, "err", err)
		return tomlconfig.Policy{}
	}
	return policy
}

// mergePolicy layers the global approval_policy/sandbox_mode TOML values
// into params, without overwriting a key the caller already set.
func mergePolicy(params map[string]any, policy tomlconfig.Policy) {
	if policy.ApprovalPolicy != "" {
		if _, ok := params["approvalPolicy"]; !ok {
			params["approvalPolicy"] = policy.ApprovalPolicy
		}
	}
	if policy.Sandbox.Mode != "" {
		if _, ok := params["sandboxMode"]; !ok {
			params["sandboxMode"] = sandboxModeWire(policy.Sandbox)
		}
	}
}

func sandboxModeWire(sm tomlconfig.SandboxMode) any {
	if !sm.NetworkAccess && !sm.ExcludeTmpdirEnvVar && !sm.ExcludeSlashTmp && len(sm.WritableRoots) == 0 {
		return sm.Mode
	}
	out := map[string]any{"mode": sm.Mode}
	if sm.NetworkAccess {
		out["networkAccess"] = true
	}
	if sm.ExcludeTmpdirEnvVar {
		out["excludeTmpdirEnvVar"] = true
	}
	if sm.ExcludeSlashTmp {
		out["excludeSlashTmp"] = true
	}
	if len(sm.WritableRoots) > 0 {
		out["writableRoots"] = sm.WritableRoots
	}
	return out
}
