package ops

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/trustpolicy"
)

// thin forwarders: these RPCs have no daemon-side semantics beyond
// resolving a session and passing params through verbatim, per §9's
// "forwarded results stay as opaque JSON values".
func (d *Deps) forward(ctx context.Context, workspaceID, method string, params map[string]any) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, method, params)
}

func (d *Deps) ModelList(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "model/list", nil)
}

func (d *Deps) ExperimentalFeatureList(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "experimentalFeature/list", nil)
}

func (d *Deps) CollaborationModeList(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "collaborationMode/list", nil)
}

func (d *Deps) SkillsList(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "skills/list", nil)
}

func (d *Deps) AppsList(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "apps/list", nil)
}

func (d *Deps) AccountRateLimits(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "account/rateLimits", nil)
}

func (d *Deps) AccountRead(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "account/read", nil)
}

func (d *Deps) GetConfigModel(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return d.forward(ctx, workspaceID, "config/getModel", nil)
}

// SetCodexFeatureFlag flips a process-wide feature flag. Unlike the
// forwarders above this is daemon-side state (AppSettings.FeatureFlags),
// not a child RPC: the flag is persisted in AppSettings, and no daemon code
// path reads it back to change the daemon's own behaviour.
func (d *Deps) SetCodexFeatureFlag(name string, enabled bool) error {
	_, err := d.Settings.Update(func(s *appsettings.Settings) {
		if s.FeatureFlags == nil {
			s.FeatureFlags = map[string]bool{}
		}
		s.FeatureFlags[name] = enabled
	})
	return err
}

// OpenWorkspaceIn launches command (validated against trustpolicy's
// whitelist) with args (each individually whitelisted, at most 8) and
// workspaceID's path as the final argument, per §7's open_workspace_in
// trust policy.
func (d *Deps) OpenWorkspaceIn(workspaceID, command string, args []string) error {
	if err := trustpolicy.CheckOpenWorkspaceIn(command, args); err != nil {
		return err
	}
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return err
	}
	cmd := exec.Command(command, append(append([]string{}, args...), entry.Path)...)
	return cmd.Start()
}
