package dispatcher

import (
	"context"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
)

func registerThreadMethods(d *Dispatcher) {
	d.register("start_thread", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		extra := rawObjectToMap(p.OptionalRaw("extra"))
		return deps.StartThread(ctx, workspaceID, extra)
	})
	d.register("resume_thread", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadID, err := p.RequiredString("threadId")
		if err != nil {
			return nil, err
		}
		extra := rawObjectToMap(p.OptionalRaw("extra"))
		return deps.ResumeThread(ctx, workspaceID, threadID, extra)
	})
	d.register("fork_thread", withWorkspaceThread(func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error) {
		return deps.ForkThread(ctx, workspaceID, threadID)
	}))
	d.register("archive_thread", withWorkspaceThread(func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error) {
		return deps.ArchiveThread(ctx, workspaceID, threadID)
	}))
	d.register("archive_threads", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadIDs, err := p.OptionalStringArray("threadIds")
		if err != nil {
			return nil, err
		}
		return deps.ArchiveThreads(ctx, workspaceID, threadIDs)
	})
	d.register("compact_thread", withWorkspaceThread(func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error) {
		return deps.CompactThread(ctx, workspaceID, threadID)
	}))
	d.register("set_thread_name", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadID, err := p.RequiredString("threadId")
		if err != nil {
			return nil, err
		}
		name, err := p.RequiredString("name")
		if err != nil {
			return nil, err
		}
		return deps.SetThreadName(ctx, workspaceID, threadID, name)
	})
	d.register("list_threads", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		cursor, err := p.OptionalString("cursor", "")
		if err != nil {
			return nil, err
		}
		limit, err := p.OptionalU32Bounded("limit", 0, parampluck.MaxLimit)
		if err != nil {
			return nil, err
		}
		return deps.ListThreads(ctx, workspaceID, cursor, limit)
	})
	d.register("thread_live_subscribe", withWorkspaceThread(func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error) {
		return deps.ThreadLiveSubscribe(ctx, workspaceID, threadID)
	}))
	d.register("thread_live_unsubscribe", withWorkspaceThread(func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error) {
		return deps.ThreadLiveUnsubscribe(ctx, workspaceID, threadID)
	}))
	d.register("respond_to_server_request", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		requestID, err := p.RequiredRaw("requestId")
		if err != nil {
			return nil, err
		}
		requestWorkspaceID, err := p.RequiredString("requestWorkspaceId")
		if err != nil {
			return nil, err
		}
		requestIDEcho, err := p.RequiredRaw("requestIdEcho")
		if err != nil {
			return nil, err
		}
		result, err := p.RequiredRaw("result")
		if err != nil {
			return nil, err
		}
		if err := deps.RespondToServerRequest(workspaceID, requestID, requestWorkspaceID, requestIDEcho, result); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
	d.register("remember_approval_rule", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		command, err := p.OptionalStringArray("command")
		if err != nil {
			return nil, err
		}
		rulesPath, err := deps.RememberApprovalRule(ctx, workspaceID, command)
		if err != nil {
			return nil, err
		}
		return struct {
			OK        bool   `json:"ok"`
			RulesPath string `json:"rulesPath"`
		}{OK: true, RulesPath: rulesPath}, nil
	})
}

// withWorkspaceThread adapts a handler needing only workspaceId/threadId.
func withWorkspaceThread(f func(ctx context.Context, deps *ops.Deps, workspaceID, threadID string) (any, error)) Handler {
	return func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadID, err := p.RequiredString("threadId")
		if err != nil {
			return nil, err
		}
		return f(ctx, deps, workspaceID, threadID)
	}
}
