package ops

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/workspace/codexmonitord/internal/audit"
)

// UsageSnapshot is the local_usage_snapshot response: per-kind event
// counts and total tokens over a window, plus human-readable summaries
// for display.
type UsageSnapshot struct {
	WorkspaceID       string           `json:"workspaceId"`
	Since             string           `json:"since,omitempty"`
	TotalTokens       int64            `json:"totalTokens"`
	TotalTokensPretty string           `json:"totalTokensPretty"`
	EventCounts       map[string]int64 `json:"eventCounts"`
}

// LocalUsageSnapshot computes a usage snapshot for workspaceID over the
// trailing `days` days (0 means all time).
func (d *Deps) LocalUsageSnapshot(workspaceID string, days uint32) (UsageSnapshot, error) {
	if d.Audit == nil {
		return UsageSnapshot{}, fmt.Errorf("usage accounting is not enabled")
	}
	since := ""
	if days > 0 {
		since = time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
	}
	snap, err := d.Audit.Snapshot(workspaceID, since)
	if err != nil {
		return UsageSnapshot{}, err
	}
	return UsageSnapshot{
		WorkspaceID:       snap.WorkspaceID,
		Since:             snap.Since,
		TotalTokens:       snap.TotalTokens,
		TotalTokensPretty: humanize.Comma(snap.TotalTokens),
		EventCounts:       snap.EventCounts,
	}, nil
}

// RecordUsageEvent appends a usage accounting row (turn completion, review,
// git op) for workspaceID. Best-effort: callers log but do not fail their
// RPC if this errors, since usage accounting is observability, not the
// operation's contract.
func (d *Deps) RecordUsageEvent(workspaceID, kind string, tokens int64) error {
	if d.Audit == nil {
		return nil
	}
	return d.Audit.RecordEvent(audit.Event{WorkspaceID: workspaceID, Kind: kind, Tokens: tokens})
}
