package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/workspace/codexmonitord/internal/eventbus"
)

// BackgroundPromptTimeout bounds the whole background-prompt collection
// per §4H/§5.
const BackgroundPromptTimeout = 60 * time.Second

// runBackgroundPrompt implements the background-prompt helper (§4H): start
// a hidden, never-approval thread, register a one-shot fan-out channel,
// publish a codex/backgroundThread notification so the UI hides it, start
// a read-only turn, collect streamed assistant text until turn/completed
// or turn/error (bounded by BackgroundPromptTimeout), then archive the
// thread and return the accumulated text.
func (d *Deps) runBackgroundPrompt(ctx context.Context, workspaceID, prompt string) (string, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return "", err
	}
	sess, err := d.Sessions.Require(workspaceID)
	if err != nil {
		return "", err
	}

	startResult, err := sess.SendRequest(ctx, "thread/start", map[string]any{
		"cwd":            entry.Path,
		"approvalPolicy": "never",
	})
	if err != nil {
		return "", fmt.Errorf("thread/start: %w", err)
	}
	threadID, err := extractThreadID(startResult)
	if err != nil {
		return "", err
	}

	events := sess.RegisterBackgroundPrompt(threadID)
	defer sess.UnregisterBackgroundPrompt(threadID)

	d.Bus.Publish(eventbus.Event{
		Kind:        eventbus.KindAppServer,
		WorkspaceID: workspaceID,
		Message: eventbus.Message{
			Method: "codex/backgroundThread",
			Params: mustMarshal(map[string]any{"threadId": threadID, "action": "hide"}),
		},
	})

	_, err = sess.SendRequest(ctx, "turn/start", map[string]any{
		"threadId":   threadID,
		"input":      []map[string]any{{"type": "text", "text": prompt}},
		"sandboxMode": "read-only",
	})
	if err != nil {
		_, _ = sess.SendRequest(ctx, "thread/archive", map[string]any{"threadId": threadID})
		return "", fmt.Errorf("turn/start: %w", err)
	}

	text, collectErr := collectBackgroundText(ctx, events, threadID)

	// Best-effort cleanup: an archive failure here is swallowed per §9's
	// open question, not surfaced to the caller.
	_, _ = sess.SendRequest(ctx, "thread/archive", map[string]any{"threadId": threadID})

	if collectErr != nil {
		return "", collectErr
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("background prompt produced no text")
	}
	return trimmed, nil
}

func collectBackgroundText(ctx context.Context, events <-chan eventbus.Event, threadID string) (string, error) {
	deadline := time.NewTimer(BackgroundPromptTimeout)
	defer deadline.Stop()

	var b strings.Builder
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return b.String(), nil
			}
			if ev.Kind != eventbus.KindAppServer {
				continue
			}
			switch {
			case strings.HasSuffix(ev.Message.Method, "item/agentMessage/delta"):
				b.WriteString(extractDeltaText(ev.Message.Params))
			case strings.HasSuffix(ev.Message.Method, "turn/completed"):
				return b.String(), nil
			case strings.HasSuffix(ev.Message.Method, "turn/error"):
				return "", fmt.Errorf("%s", extractTurnError(ev.Message.Params))
			}
		case <-deadline.C:
			return "", fmt.Errorf("background prompt timed out after %s", BackgroundPromptTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func extractDeltaText(params json.RawMessage) string {
	var probe struct {
		Delta string `json:"delta"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return ""
	}
	if probe.Delta != "" {
		return probe.Delta
	}
	return probe.Text
}

func extractTurnError(params json.RawMessage) string {
	var probe struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(params, &probe); err == nil {
		if probe.Message != "" {
			return probe.Message
		}
		if probe.Error != "" {
			return probe.Error
		}
	}
	return "turn/error"
}

// extractThreadID pulls threadId out of whichever shape thread/start
// happened to return (§4H: "several possible response shapes").
func extractThreadID(raw json.RawMessage) (string, error) {
	var direct struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(raw, &direct); err == nil && direct.ThreadID != "" {
		return direct.ThreadID, nil
	}
	var nested struct {
		Thread struct {
			ID string `json:"id"`
		} `json:"thread"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Thread.ID != "" {
		return nested.Thread.ID, nil
	}
	var id struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &id); err == nil && id.ID != "" {
		return id.ID, nil
	}
	return "", fmt.Errorf("could not extract threadId from thread/start response")
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

// GenerateCommitMessage runs the background-prompt helper with a prompt
// asking for a commit message summarising the workspace's current diff.
func (d *Deps) GenerateCommitMessage(ctx context.Context, workspaceID, diff string) (string, error) {
	prompt := "Write a concise, conventional commit message for the following diff. Respond with only the commit message text.\n\n" + diff
	return d.runBackgroundPrompt(ctx, workspaceID, prompt)
}

// GenerateRunMetadata runs the background-prompt helper with a prompt
// asking for a short title/summary describing what a turn did, used to
// label run history entries in the UI.
func (d *Deps) GenerateRunMetadata(ctx context.Context, workspaceID, turnSummary string) (string, error) {
	prompt := "Write a short (<=8 word) title summarizing this agent run. Respond with only the title text.\n\n" + turnSummary
	return d.runBackgroundPrompt(ctx, workspaceID, prompt)
}
