package audit

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordEventAndSnapshot(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", Tokens: 100, OccurredAt: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", Tokens: 50, OccurredAt: "2026-01-02T00:00:00Z"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent(Event{WorkspaceID: "w1", Kind: "review", Tokens: 10, OccurredAt: "2026-01-02T00:00:00Z"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent(Event{WorkspaceID: "w2", Kind: "turn", Tokens: 999, OccurredAt: "2026-01-02T00:00:00Z"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	snap, err := s.Snapshot("w1", "")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalTokens != 160 {
		t.Fatalf("expected total 160, got %d", snap.TotalTokens)
	}
	if snap.EventCounts["turn"] != 2 || snap.EventCounts["review"] != 1 {
		t.Fatalf("unexpected counts: %+v", snap.EventCounts)
	}
}

func TestSnapshotRespectsSinceFilter(t *testing.T) {
	s := openTestStore(t)
	_ = s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", Tokens: 5, OccurredAt: "2026-01-01T00:00:00Z"})
	_ = s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", Tokens: 7, OccurredAt: "2026-02-01T00:00:00Z"})

	snap, err := s.Snapshot("w1", "2026-01-15T00:00:00Z")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalTokens != 7 {
		t.Fatalf("expected only the later event counted, got %d", snap.TotalTokens)
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := openTestStore(t)
	_ = s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", OccurredAt: "2020-01-01T00:00:00Z"})
	_ = s.RecordEvent(Event{WorkspaceID: "w1", Kind: "turn", OccurredAt: "2026-01-01T00:00:00Z"})

	n, err := s.PruneOlderThan("2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}

	snap, err := s.Snapshot("w1", "")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.EventCounts["turn"] != 1 {
		t.Fatalf("expected 1 remaining event, got %+v", snap.EventCounts)
	}
}
