package dispatcher

import (
	"context"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
)

func parseUserMessageRequest(p parampluck.Params) (ops.UserMessageRequest, error) {
	var req ops.UserMessageRequest
	var err error
	if req.WorkspaceID, err = p.RequiredString("workspaceId"); err != nil {
		return req, err
	}
	if req.ThreadID, err = p.RequiredString("threadId"); err != nil {
		return req, err
	}
	if req.Text, err = p.OptionalString("text", ""); err != nil {
		return req, err
	}
	if req.Model, err = p.OptionalString("model", ""); err != nil {
		return req, err
	}
	if req.Effort, err = p.OptionalString("effort", ""); err != nil {
		return req, err
	}
	if req.AccessMode, err = p.OptionalString("accessMode", ""); err != nil {
		return req, err
	}
	if req.CollaborationMode, err = p.OptionalString("collaborationMode", ""); err != nil {
		return req, err
	}
	req.Images = rawImages(p.OptionalRaw("images"))
	req.AppMentions = rawAppMentions(p.OptionalRaw("appMentions"))
	req.SkillMentions = rawSkillMentions(p.OptionalRaw("skillMentions"))
	return req, nil
}

func registerTurnMethods(d *Dispatcher) {
	d.register("send_user_message", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		req, err := parseUserMessageRequest(p)
		if err != nil {
			return nil, err
		}
		return deps.SendUserMessage(ctx, req)
	})
	d.register("turn_steer", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		base, err := parseUserMessageRequest(p)
		if err != nil {
			return nil, err
		}
		turnID, err := p.RequiredString("turnId")
		if err != nil {
			return nil, err
		}
		return deps.TurnSteer(ctx, ops.TurnSteerRequest{UserMessageRequest: base, TurnID: turnID})
	})
	d.register("turn_interrupt", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadID, err := p.RequiredString("threadId")
		if err != nil {
			return nil, err
		}
		turnID, err := p.RequiredString("turnId")
		if err != nil {
			return nil, err
		}
		return deps.TurnInterrupt(ctx, workspaceID, threadID, turnID)
	})
	d.register("start_review", func(ctx context.Context, deps *ops.Deps, p parampluck.Params) (any, error) {
		workspaceID, err := p.RequiredString("workspaceId")
		if err != nil {
			return nil, err
		}
		threadID, err := p.RequiredString("threadId")
		if err != nil {
			return nil, err
		}
		target, err := p.RequiredString("target")
		if err != nil {
			return nil, err
		}
		delivery, err := p.OptionalString("delivery", "")
		if err != nil {
			return nil, err
		}
		return deps.StartReview(ctx, workspaceID, threadID, target, delivery)
	})
}
