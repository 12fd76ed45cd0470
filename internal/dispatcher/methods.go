package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
	"github.com/workspace/codexmonitord/internal/registry"
)

// ok wraps the common {"ok": true} acknowledgement shape (§6).
type ok struct {
	OK bool `json:"ok"`
}

func registerMethods(d *Dispatcher) {
	d.register("ping", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		return ok{OK: true}, nil
	})
	d.register("daemon_info", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		return deps.Info(), nil
	})
	d.register("daemon_shutdown", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		deps.Shutdown()
		return ok{OK: true}, nil
	})

	d.register("list_workspaces", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		return deps.ListWorkspaces(), nil
	})
	d.register("is_workspace_path_dir", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		path, err := p.RequiredString("path")
		if err != nil {
			return nil, err
		}
		return ops.IsWorkspacePathDir(path), nil
	})
	d.register("add_workspace", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		path, err := p.RequiredString("path")
		if err != nil {
			return nil, err
		}
		agentBin, err := p.OptionalString("agentBin", "")
		if err != nil {
			return nil, err
		}
		return deps.AddWorkspace(path, agentBin)
	})
	d.register("add_workspace_from_git_url", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		url, err := p.RequiredString("url")
		if err != nil {
			return nil, err
		}
		destParent, err := p.RequiredString("destinationParent")
		if err != nil {
			return nil, err
		}
		targetName, err := p.OptionalString("targetName", "")
		if err != nil {
			return nil, err
		}
		agentBin, err := p.OptionalString("agentBin", "")
		if err != nil {
			return nil, err
		}
		return deps.AddWorkspaceFromGitURL(url, destParent, targetName, agentBin)
	})
	d.register("add_clone", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		sourceID, err := p.RequiredString("sourceId")
		if err != nil {
			return nil, err
		}
		copyName, err := p.RequiredString("copyName")
		if err != nil {
			return nil, err
		}
		copiesFolder, err := p.RequiredString("copiesFolder")
		if err != nil {
			return nil, err
		}
		return deps.AddClone(sourceID, copyName, copiesFolder)
	})
	d.register("add_worktree", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		parentID, err := p.RequiredString("parentId")
		if err != nil {
			return nil, err
		}
		branch, err := p.RequiredString("branch")
		if err != nil {
			return nil, err
		}
		name, err := p.OptionalString("name", "")
		if err != nil {
			return nil, err
		}
		copyAgentsMD, err := p.OptionalBool("copyAgentsMd", false)
		if err != nil {
			return nil, err
		}
		return deps.AddWorktree(parentID, branch, name, copyAgentsMD)
	})
	d.register("connect_workspace", withID(func(deps *ops.Deps, id string) (any, error) {
		if err := deps.ConnectWorkspace(id); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	}))
	d.register("remove_workspace", withID(func(deps *ops.Deps, id string) (any, error) {
		if err := deps.RemoveWorkspace(id); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	}))
	d.register("remove_worktree", withID(func(deps *ops.Deps, id string) (any, error) {
		if err := deps.RemoveWorktree(id); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	}))
	d.register("rename_worktree", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		newBranch, err := p.RequiredString("newBranch")
		if err != nil {
			return nil, err
		}
		return deps.RenameWorktree(id, newBranch)
	})
	d.register("rename_worktree_upstream", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		oldBranch, err := p.RequiredString("oldBranch")
		if err != nil {
			return nil, err
		}
		newBranch, err := p.RequiredString("newBranch")
		if err != nil {
			return nil, err
		}
		return deps.RenameWorktreeUpstream(id, oldBranch, newBranch)
	})
	d.register("worktree_setup_status", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		shouldRun, script, err := deps.WorktreeSetupStatus(workspaceID)
		if err != nil {
			return nil, err
		}
		return struct {
			ShouldRun bool   `json:"shouldRun"`
			Script    string `json:"script"`
		}{shouldRun, script}, nil
	})
	d.register("worktree_setup_mark_ran", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		if err := deps.WorktreeSetupMarkRan(workspaceID); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
	d.register("update_workspace_settings", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		raw, err := p.RequiredRaw("settings")
		if err != nil {
			return nil, err
		}
		var settings registry.Settings
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, &parampluck.InvalidParamsError{Key: "settings", Reason: "expected a settings object"}
		}
		revision, err := p.RequiredU32Bounded("revision", ^uint32(0))
		if err != nil {
			return nil, err
		}
		return deps.UpdateWorkspaceSettings(id, uint64(revision), settings)
	})
	d.register("update_workspace_agent_bin", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		agentBin, err := p.OptionalString("agentBin", "")
		if err != nil {
			return nil, err
		}
		return deps.UpdateWorkspaceAgentBin(id, agentBin)
	})

	d.register("list_workspace_files", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		path, err := p.OptionalString("path", ".")
		if err != nil {
			return nil, err
		}
		return deps.ListWorkspaceFiles(workspaceID, path)
	})
	d.register("read_workspace_file", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		path, err := p.RequiredString("path")
		if err != nil {
			return nil, err
		}
		content, err := deps.ReadWorkspaceFile(workspaceID, path)
		if err != nil {
			return nil, err
		}
		return struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}{path, string(content)}, nil
	})

	registerThreadMethods(d)
	registerTurnMethods(d)
	registerMiscMethods(d)
	registerGitMethods(d)
	registerUsageMethods(d)
	registerPromptMethods(d)
}

// withID adapts a handler that only needs params.id into the Handler
// signature, matching the many RPCs whose only required field is "id".
func withID(f func(deps *ops.Deps, id string) (any, error)) Handler {
	return func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		return f(deps, id)
	}
}
