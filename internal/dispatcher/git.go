package dispatcher

import (
	"context"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
)

func registerGitMethods(d *Dispatcher) {
	d.register("git_status", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		return deps.GitStatus(workspaceID)
	}))
	d.register("stage_git_file", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		paths, err := p.OptionalStringArray("paths")
		if err != nil {
			return nil, err
		}
		if err := deps.StageGitFile(workspaceID, paths); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
	d.register("revert_git_file", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		paths, err := p.OptionalStringArray("paths")
		if err != nil {
			return nil, err
		}
		if err := deps.RevertGitFile(workspaceID, paths); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
	d.register("git_push", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		out, err := deps.GitPush(workspaceID)
		if err != nil {
			return nil, err
		}
		return outputResult{out}, nil
	}))
	d.register("git_pull", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		out, err := deps.GitPull(workspaceID)
		if err != nil {
			return nil, err
		}
		return outputResult{out}, nil
	}))
	d.register("git_sync", withWorkspace(func(ctx context.Context, deps *ops.Deps, workspaceID string) (any, error) {
		out, err := deps.GitSync(workspaceID)
		if err != nil {
			return nil, err
		}
		return outputResult{out}, nil
	}))

	d.register("get_github_pull_request", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		prNumber, err := p.RequiredU32Bounded("prNumber", parampluck.MaxPRNumber)
		if err != nil {
			return nil, err
		}
		return deps.GetGitHubPullRequest(workspaceID, int(prNumber))
	})
	d.register("list_github_pull_requests", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		limit, err := p.OptionalU32Bounded("limit", 0, parampluck.MaxLimit)
		if err != nil {
			return nil, err
		}
		return deps.ListGitHubPullRequests(workspaceID, limit)
	})
	d.register("get_github_pull_request_diff", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		prNumber, err := p.RequiredU32Bounded("prNumber", parampluck.MaxPRNumber)
		if err != nil {
			return nil, err
		}
		return deps.GetGitHubPullRequestDiff(workspaceID, int(prNumber))
	})

	d.register("generate_commit_message", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		diff, err := p.RequiredString("diff")
		if err != nil {
			return nil, err
		}
		message, err := deps.GenerateCommitMessage(ctx, workspaceID, diff)
		if err != nil {
			return nil, err
		}
		return struct {
			Message string `json:"message"`
		}{message}, nil
	})
	d.register("generate_run_metadata", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		turnSummary, err := p.RequiredString("turnSummary")
		if err != nil {
			return nil, err
		}
		title, err := deps.GenerateRunMetadata(ctx, workspaceID, turnSummary)
		if err != nil {
			return nil, err
		}
		return struct {
			Title string `json:"title"`
		}{title}, nil
	})
}

// outputResult wraps a raw CLI stdout blob for wire methods whose only
// payload is the command's text output.
type outputResult struct {
	Output string `json:"output"`
}
