package dispatcher

import (
	"context"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
)

func registerUsageMethods(d *Dispatcher) {
	d.register("local_usage_snapshot", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		days, err := p.OptionalU32Bounded("days", 0, parampluck.MaxDays)
		if err != nil {
			return nil, err
		}
		return deps.LocalUsageSnapshot(workspaceID, days)
	})
}

func registerPromptMethods(d *Dispatcher) {
	d.register("list_prompts", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		return deps.ListPrompts()
	})
	d.register("save_prompt", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.OptionalString("id", "")
		if err != nil {
			return nil, err
		}
		name, err := p.RequiredString("name")
		if err != nil {
			return nil, err
		}
		body, err := p.OptionalString("body", "")
		if err != nil {
			return nil, err
		}
		return deps.SavePrompt(id, name, body)
	})
	d.register("delete_prompt", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		id, err := p.RequiredString("id")
		if err != nil {
			return nil, err
		}
		if err := deps.DeletePrompt(id); err != nil {
			return nil, err
		}
		return ok{OK: true}, nil
	})
}
