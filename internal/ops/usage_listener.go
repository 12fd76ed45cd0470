package ops

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/workspace/codexmonitord/internal/eventbus"
)

// RunUsageListener subscribes to the event bus and turns turn/review
// completions streamed by any workspace's child into audit rows, so
// local_usage_snapshot's counters actually accumulate instead of staying
// permanently empty. It blocks until ctx is cancelled or the bus closes;
// callers run it in its own goroutine for the daemon's lifetime.
func (d *Deps) RunUsageListener(ctx context.Context) {
	if d.Audit == nil {
		return
	}
	sub := d.Bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if ev.Kind != eventbus.KindAppServer {
			continue
		}
		kind, tokens, ok := classifyUsageEvent(ev.Message.Method, ev.Message.Params)
		if !ok {
			continue
		}
		if err := d.RecordUsageEvent(ev.WorkspaceID, kind, tokens); err != nil {
			d.logger().Warn("failed to record usage event", "workspace_id", ev.WorkspaceID, "kind", kind, "err", err)
		}
	}
}

// classifyUsageEvent reports the audit kind and token count a completion
// notification contributes, or ok=false if method isn't one we account.
func classifyUsageEvent(method string, params json.RawMessage) (kind string, tokens int64, ok bool) {
	switch {
	case strings.HasSuffix(method, "turn/completed"):
		return "turn", extractUsageTokens(params), true
	case strings.HasSuffix(method, "review/completed"):
		return "review", extractUsageTokens(params), true
	default:
		return "", 0, false
	}
}

// extractUsageTokens pulls a token count out of whichever usage shape the
// child happened to report (a flat totalTokens, or separate input/output
// counters), mirroring extractThreadID's tolerance for shape variance.
func extractUsageTokens(params json.RawMessage) int64 {
	var probe struct {
		Usage *struct {
			TotalTokens  int64 `json:"totalTokens"`
			InputTokens  int64 `json:"inputTokens"`
			OutputTokens int64 `json:"outputTokens"`
		} `json:"usage"`
		TotalTokens int64 `json:"totalTokens"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return 0
	}
	if probe.Usage != nil {
		if probe.Usage.TotalTokens > 0 {
			return probe.Usage.TotalTokens
		}
		if sum := probe.Usage.InputTokens + probe.Usage.OutputTokens; sum > 0 {
			return sum
		}
	}
	return probe.TotalTokens
}
