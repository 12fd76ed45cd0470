package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ImageInput is one image attachment on a user message, before
// classification into the wire's {type, url|path} shape.
type ImageInput struct {
	Source string // data: URI, http(s) URL, or local filesystem path
}

// AppMention references an installed app by name and an app:// path.
type AppMention struct {
	Name string
	Path string
}

// SkillMention references a skill by name and an absolute filesystem path.
type SkillMention struct {
	Name string
	Path string
}

// buildInput assembles the ordered "input" array §4H describes for
// send_user_message/turn_steer: text, then classified images, then
// deduplicated app mentions, then deduplicated skill mentions.
func buildInput(text string, images []ImageInput, apps []AppMention, skills []SkillMention) []map[string]any {
	var input []map[string]any

	if strings.TrimSpace(text) != "" {
		input = append(input, map[string]any{"type": "text", "text": text})
	}

	for _, img := range images {
		switch {
		case strings.HasPrefix(img.Source, "data:"), strings.HasPrefix(img.Source, "http://"), strings.HasPrefix(img.Source, "https://"):
			input = append(input, map[string]any{"type": "image", "url": img.Source})
		default:
			input = append(input, map[string]any{"type": "localImage", "path": img.Source})
		}
	}

	seenApps := make(map[string]bool)
	for _, a := range apps {
		if a.Name == "" || !strings.HasPrefix(a.Path, "app://") {
			continue
		}
		if seenApps[a.Path] {
			continue
		}
		seenApps[a.Path] = true
		input = append(input, map[string]any{"type": "appMention", "name": a.Name, "path": a.Path})
	}

	seenSkills := make(map[string]bool)
	for _, s := range skills {
		if s.Name == "" || s.Path == "" || !strings.HasPrefix(s.Path, "/") {
			continue
		}
		key := s.Name + "::" + s.Path
		if seenSkills[key] {
			continue
		}
		seenSkills[key] = true
		input = append(input, map[string]any{"type": "skillMention", "name": s.Name, "path": s.Path})
	}

	return input
}

// UserMessageRequest collects the optional fields send_user_message
// accepts beyond workspaceId/threadId/text.
type UserMessageRequest struct {
	WorkspaceID       string
	ThreadID          string
	Text              string
	Model             string
	Effort            string
	AccessMode        string
	Images            []ImageInput
	AppMentions       []AppMention
	SkillMentions     []SkillMention
	CollaborationMode string
}

// SendUserMessage builds the ordered input array, rejects an empty result,
// merges the approval/sandbox policy, and starts a turn.
func (d *Deps) SendUserMessage(ctx context.Context, req UserMessageRequest) (json.RawMessage, error) {
	entry, err := d.requireEntry(req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	sess, err := d.Sessions.Require(req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	input := buildInput(req.Text, req.Images, req.AppMentions, req.SkillMentions)
	if len(input) == 0 {
		return nil, fmt.Errorf("empty user message")
	}

	params := map[string]any{
		"cwd":      entry.Path,
		"threadId": req.ThreadID,
		"input":    input,
	}
	if req.Model != "" {
		params["model"] = req.Model
	}
	if req.Effort != "" {
		params["effort"] = req.Effort
	}
	if req.AccessMode != "" {
		params["accessMode"] = req.AccessMode
	}
	if req.CollaborationMode != "" {
		params["collaborationMode"] = req.CollaborationMode
	}
	mergePolicy(params, d.loadPolicy())

	return sess.SendRequest(ctx, "turn/start", params)
}

// TurnSteerRequest mirrors UserMessageRequest plus the turn being steered.
type TurnSteerRequest struct {
	UserMessageRequest
	TurnID string
}

// TurnSteer builds the same input array as SendUserMessage and tags it
// with expectedTurnId, rejecting a missing turn id.
func (d *Deps) TurnSteer(ctx context.Context, req TurnSteerRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.TurnID) == "" {
		return nil, fmt.Errorf("missing active turn id")
	}
	entry, err := d.requireEntry(req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	sess, err := d.Sessions.Require(req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	input := buildInput(req.Text, req.Images, req.AppMentions, req.SkillMentions)
	if len(input) == 0 {
		return nil, fmt.Errorf("empty user message")
	}

	params := map[string]any{
		"cwd":            entry.Path,
		"threadId":       req.ThreadID,
		"input":          input,
		"expectedTurnId": req.TurnID,
	}
	if req.Model != "" {
		params["model"] = req.Model
	}
	if req.Effort != "" {
		params["effort"] = req.Effort
	}
	mergePolicy(params, d.loadPolicy())

	return sess.SendRequest(ctx, "turn/steer", params)
}

// TurnInterrupt cancels an in-flight turn.
func (d *Deps) TurnInterrupt(ctx context.Context, workspaceID, threadID, turnID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "turn/interrupt", map[string]any{"threadId": threadID, "turnId": turnID})
}

// StartReview starts a code review turn against target (a diff range,
// commit, or working-tree state), optionally requesting a specific
// delivery mode for the results.
func (d *Deps) StartReview(ctx context.Context, workspaceID, threadID, target, delivery string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"threadId": threadID, "target": target}
	if delivery != "" {
		params["delivery"] = delivery
	}
	return sess.SendRequest(ctx, "review/start", params)
}
