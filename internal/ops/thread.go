package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/workspace/codexmonitord/internal/parampluck"
)

// StartThread sends thread/start to workspaceID's child, merging in the
// global approval_policy/sandbox_mode TOML settings and cwd=entry.Path.
func (d *Deps) StartThread(ctx context.Context, workspaceID string, extra map[string]any) (json.RawMessage, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return nil, err
	}
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}

	params := map[string]any{"cwd": entry.Path}
	for k, v := range extra {
		params[k] = v
	}
	mergePolicy(params, d.loadPolicy())

	return sess.SendRequest(ctx, "thread/start", params)
}

// ResumeThread prefers thread/resume, falling back to thread/read when the
// child reports (via a lowercased substring match) that it does not know
// thread/resume — per §4H's note that this should become a code-based
// check once the agent gains structured errors.
func (d *Deps) ResumeThread(ctx context.Context, workspaceID, threadID string, extra map[string]any) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"threadId": threadID}
	for k, v := range extra {
		params[k] = v
	}

	result, err := sess.SendRequest(ctx, "thread/resume", params)
	if err == nil {
		return result, nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "method not found") {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/read", params)
}

// ForkThread forks threadID into a new thread.
func (d *Deps) ForkThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/fork", map[string]any{"threadId": threadID})
}

// ArchiveThread archives a single thread.
func (d *Deps) ArchiveThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/archive", map[string]any{"threadId": threadID})
}

// ArchiveResult is the batch result of ArchiveThreads (§4H, §8 scenario 4).
type ArchiveResult struct {
	AllSucceeded bool              `json:"allSucceeded"`
	OKIDs        []string          `json:"okIds"`
	Failed       []ArchiveFailure  `json:"failed"`
	Total        int               `json:"total"`
}

// ArchiveFailure is one per-thread failure within a batch archive.
type ArchiveFailure struct {
	ThreadID string `json:"threadId"`
	Error    string `json:"error"`
}

// ArchiveThreads archives every distinct, trimmed, non-empty id in
// threadIDs, collecting per-id failures rather than failing the whole
// call (§8 scenario 4).
func (d *Deps) ArchiveThreads(ctx context.Context, workspaceID string, threadIDs []string) (ArchiveResult, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, raw := range threadIDs {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	result := ArchiveResult{AllSucceeded: true, OKIDs: []string{}, Failed: []ArchiveFailure{}, Total: len(ids)}
	for _, id := range ids {
		if _, err := d.ArchiveThread(ctx, workspaceID, id); err != nil {
			result.AllSucceeded = false
			result.Failed = append(result.Failed, ArchiveFailure{ThreadID: id, Error: err.Error()})
			continue
		}
		result.OKIDs = append(result.OKIDs, id)
	}
	return result, nil
}

// CompactThread asks the child to compact threadID's history.
func (d *Deps) CompactThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/compact", map[string]any{"threadId": threadID})
}

// SetThreadName stores a display name for threadID, both forwarded to the
// child and mirrored into the workspace's ThreadDisplayNames settings so
// it survives a daemon restart even if the child does not persist it.
func (d *Deps) SetThreadName(ctx context.Context, workspaceID, threadID, name string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	result, err := sess.SendRequest(ctx, "thread/setName", map[string]any{"threadId": threadID, "name": name})
	if err != nil {
		return nil, err
	}

	entry, getErr := d.requireEntry(workspaceID)
	if getErr == nil {
		settings := entry.Settings
		if settings.ThreadDisplayNames == nil {
			settings.ThreadDisplayNames = map[string]string{}
		}
		settings.ThreadDisplayNames[threadID] = name
		_, _ = d.Registry.UpdateSettings(workspaceID, entry.SettingsRevision, settings)
	}
	return result, nil
}

// ListThreads lists threads for workspaceID, forwarding pagination as-is.
func (d *Deps) ListThreads(ctx context.Context, workspaceID string, cursor string, limit uint32) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return sess.SendRequest(ctx, "thread/list", params)
}

// ThreadLiveSubscribe/Unsubscribe ask the child to start/stop streaming
// live updates for a thread (e.g. partial tool output) beyond the default
// event stream.
func (d *Deps) ThreadLiveSubscribe(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/liveSubscribe", map[string]any{"threadId": threadID})
}

func (d *Deps) ThreadLiveUnsubscribe(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return nil, err
	}
	return sess.SendRequest(ctx, "thread/liveUnsubscribe", map[string]any{"threadId": threadID})
}

// RespondToServerRequest validates the §4D binding echo and relays result
// to the child as the response to its original request id.
func (d *Deps) RespondToServerRequest(workspaceID string, requestID json.RawMessage, requestWorkspaceID string, requestIDEcho json.RawMessage, result json.RawMessage) error {
	if requestWorkspaceID != workspaceID || !jsonRawEqual(requestIDEcho, requestID) {
		return &parampluck.InvalidParamsError{Key: "requestWorkspaceId", Reason: "workspace/request binding mismatch"}
	}
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return err
	}
	return sess.SendResponse(requestID, result)
}

// jsonRawEqual compares two JSON scalars (number or string id) by decoded
// value rather than byte-for-byte, since a number may arrive as "42" or 42.
func jsonRawEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return normalizeID(av) == normalizeID(bv)
}

func normalizeID(v any) string {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// RememberApprovalRule records a one-off approved command as a standing
// rule, forwarded to the child which owns the rules file.
func (d *Deps) RememberApprovalRule(ctx context.Context, workspaceID string, command []string) (rulesPath string, err error) {
	sess, sessErr := d.Sessions.Require(workspaceID)
	if sessErr != nil {
		return "", sessErr
	}
	raw, err := sess.SendRequest(ctx, "approval/rememberRule", map[string]any{"command": command})
	if err != nil {
		return "", err
	}
	var resp struct {
		RulesPath string `json:"rulesPath"`
	}
	_ = json.Unmarshal(raw, &resp)
	return resp.RulesPath, nil
}
