// Package audit provides SQLite-backed usage and event accounting backing
// the local_usage_snapshot RPC: per-workspace turn/token counters and a
// rolling event log, queried for a point-in-time usage summary.
package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event is a single recorded occurrence (a completed turn, a review, a
// git operation) contributing to usage accounting.
type Event struct {
	ID          int64
	WorkspaceID string
	Kind        string // "turn", "review", "git_push", "git_pull", ...
	Tokens      int64
	OccurredAt  string // RFC3339
}

// Store is the audit trail backing usage snapshots.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens a SQLite database at dbPath, applying WAL mode and
// a busy timeout so the daemon's single writer never blocks readers for
// long.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{
		migrateV1,
	}

	for i := version; i < len(migrations); i++ {
		slog.Info("applying audit migration", "version", i+1)
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			occurred_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_workspace ON events(workspace_id);
		CREATE INDEX IF NOT EXISTS idx_events_occurred ON events(occurred_at);
	`)
	return err
}

// RecordEvent appends an event. OccurredAt defaults to now if empty.
func (s *Store) RecordEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.OccurredAt == "" {
		e.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		"INSERT INTO events (workspace_id, kind, tokens, occurred_at) VALUES (?, ?, ?, ?)",
		e.WorkspaceID, e.Kind, e.Tokens, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Snapshot is the local_usage_snapshot response shape: per-kind event
// counts and total tokens, over the requested window.
type Snapshot struct {
	WorkspaceID string
	Since       string
	TotalTokens int64
	EventCounts map[string]int64
}

// Snapshot computes usage for workspaceID since the given RFC3339
// timestamp (empty means all time).
func (s *Store) Snapshot(workspaceID, since string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT kind, COUNT(*), COALESCE(SUM(tokens), 0) FROM events WHERE workspace_id = ?"
	args := []any{workspaceID}
	if since != "" {
		query += " AND occurred_at >= ?"
		args = append(args, since)
	}
	query += " GROUP BY kind"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{WorkspaceID: workspaceID, Since: since, EventCounts: map[string]int64{}}
	for rows.Next() {
		var kind string
		var count, tokens int64
		if err := rows.Scan(&kind, &count, &tokens); err != nil {
			return Snapshot{}, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.EventCounts[kind] = count
		snap.TotalTokens += tokens
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate snapshot: %w", err)
	}
	return snap, nil
}

// PruneOlderThan deletes events older than the given RFC3339 cutoff,
// bounding the audit log's growth for long-lived daemons.
func (s *Store) PruneOlderThan(cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM events WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
