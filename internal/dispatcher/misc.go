package dispatcher

import (
	"context"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
)

// withWorkspace adapts a handler needing only workspaceId, the common shape
// of the thin forwarders in ops/misc.go.
func withWorkspace(f func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error)) Handler {
	return func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		return f(ctx, deps, workspaceID)
	}
}

func registerMiscMethods(d *Dispatcher) {
	d.register("model_list", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.ModelList(ctx, workspaceID)
	}))
	d.register("experimental_feature_list", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.ExperimentalFeatureList(ctx, workspaceID)
	}))
	d.register("collaboration_mode_list", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.CollaborationModeList(ctx, workspaceID)
	}))
	d.register("skills_list", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.SkillsList(ctx, workspaceID)
	}))
	d.register("apps_list", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.AppsList(ctx, workspaceID)
	}))
	d.register("account_rate_limits", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.AccountRateLimits(ctx, workspaceID)
	}))
	d.register("account_read", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.AccountRead(ctx, workspaceID)
	}))
	d.register("get_config_model", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.GetConfigModel(ctx, workspaceID)
	}))
	d.register("set_codex_feature_flag", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		name, err := p.RequiredString("name")
		if err != nil {
			return nil, err
		}
		enabled, err := p.RequiredBool("enabled")
		if err != nil {
			return nil, err
		}
		if err := deps.SetCodexFeatureFlag(name, enabled); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
	d.register("open_workspace_in", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		command, err := p.RequiredString("command")
		if err != nil {
			return nil, err
		}
		args, err := p.OptionalStringArray("args")
		if err != nil {
			return nil, err
		}
		if err := deps.OpenWorkspaceIn(workspaceID, command, args); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
}
