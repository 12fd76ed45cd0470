// Package registry implements the workspace registry (§4E): an in-memory
// {id -> Entry} map with atomic JSON persistence, a mutex guarding every
// mutating operation, and a monotonic settings-revision counter enforcing
// compare-and-swap semantics on settings writes.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation names an id the registry does
// not know about.
var ErrNotFound = fmt.Errorf("workspace not found")

// ErrStaleRevision is returned by UpdateSettings when the caller's observed
// revision no longer matches the current one.
type ErrStaleRevision struct {
	Expected uint64
	Got      uint64
}

func (e *ErrStaleRevision) Error() string {
	return fmt.Sprintf("stale workspace settings write rejected (expected revision %d, got %d)", e.Expected, e.Got)
}

// Registry owns the in-memory workspace map and its on-disk snapshot.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	dataDir  string
	filePath string
}

// Open loads <dataDir>/workspaces.json if present, or starts empty.
func Open(dataDir string) (*Registry, error) {
	r := &Registry{
		entries:  make(map[string]*Entry),
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, "workspaces.json"),
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read workspaces.json: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return r, nil
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse workspaces.json: %w", err)
	}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r, nil
}

// List returns every entry sorted by (sort_order ASC with unset last, then
// name, then id).
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		as, bs := a.Settings.SortOrder, b.Settings.SortOrder
		if (as == nil) != (bs == nil) {
			return as != nil // set sorts before unset
		}
		if as != nil && bs != nil && *as != *bs {
			return *as < *bs
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// Get returns a copy of the entry with the given id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// persistLocked writes the current map to disk atomically (temp file in the
// same directory, fsync, rename). Must be called with r.mu held.
func (r *Registry) persistLocked() error {
	snapshot := r.snapshotLocked()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspaces: %w", err)
	}
	return atomicWrite(r.filePath, data, 0o644)
}

// atomicWrite writes data to a temp file in path's directory, fsyncs it,
// and renames it over path.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// AddWorkspace creates a Main entry rooted at path. trySpawn is invoked
// with the candidate entry before it is persisted; if it returns an error
// the entry is discarded entirely (all-or-nothing, per §4E).
func (r *Registry) AddWorkspace(path, agentBinOverride string, trySpawn func(Entry) error) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Entry{}, fmt.Errorf("invalid path: %s is not an existing directory", path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve absolute path: %w", err)
	}

	now := time.Now().UTC()
	entry := Entry{
		ID:               uuid.NewString(),
		Name:             filepath.Base(absPath),
		Path:             absPath,
		Kind:             KindMain,
		AgentBinOverride: agentBinOverride,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if trySpawn != nil {
		if err := trySpawn(entry); err != nil {
			return Entry{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = &entry
	if err := r.persistLocked(); err != nil {
		delete(r.entries, entry.ID)
		return Entry{}, err
	}
	return entry, nil
}

// UpdateSettings applies a compare-and-swap write: expectedRevision must
// equal the entry's current SettingsRevision or the write is rejected and
// neither in-memory nor on-disk state changes.
func (r *Registry) UpdateSettings(id string, expectedRevision uint64, settings Settings) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.SettingsRevision != expectedRevision {
		return Entry{}, &ErrStaleRevision{Expected: expectedRevision, Got: e.SettingsRevision}
	}

	normalizeSettings(&settings)

	prev := *e
	e.Settings = settings
	e.SettingsRevision++
	e.UpdatedAt = time.Now().UTC()

	if err := r.persistLocked(); err != nil {
		*e = prev
		return Entry{}, err
	}

	// Worktree-setup-script changes on a Main propagate to its children.
	if e.Kind == KindMain {
		for _, child := range r.entries {
			if child.Kind == KindWorktree && child.ParentID == id {
				child.Settings.WorktreeSetupScript = settings.WorktreeSetupScript
			}
		}
		_ = r.persistLocked()
	}

	return *e, nil
}

// normalizeSettings trims surrounding whitespace from the script strings,
// so a blank script is stored as the empty string, the same as unset.
func normalizeSettings(s *Settings) {
	s.LaunchScript = strings.TrimSpace(s.LaunchScript)
	s.WorktreeSetupScript = strings.TrimSpace(s.WorktreeSetupScript)
}

// UpdateAgentBin replaces the agent binary override and persists.
func (r *Registry) UpdateAgentBin(id, agentBin string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	prev := *e
	e.AgentBinOverride = agentBin
	e.UpdatedAt = time.Now().UTC()
	if err := r.persistLocked(); err != nil {
		*e = prev
		return Entry{}, err
	}
	return *e, nil
}

// Remove deletes id from the registry and persists. The caller is
// responsible for tearing down any associated session and filesystem state
// before calling Remove.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	prev := *e
	delete(r.entries, id)
	if err := r.persistLocked(); err != nil {
		r.entries[id] = &prev
		return err
	}
	return nil
}

// Children returns the Worktree entries whose ParentID is id.
func (r *Registry) Children(id string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Kind == KindWorktree && e.ParentID == id {
			out = append(out, *e)
		}
	}
	return out
}

// Insert adds a fully-formed entry (used by AddWorktree, which builds the
// Entry after running git commands) and persists. If persistence fails the entry is not retained.
func (r *Registry) Insert(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = &e
	if err := r.persistLocked(); err != nil {
		delete(r.entries, e.ID)
		return err
	}
	return nil
}

// DataDir returns the registry's backing directory.
func (r *Registry) DataDir() string { return r.dataDir }

// WorktreeSetupMarkerPath returns the path of the marker file that records
// that the worktree-setup script has already run for id.
func (r *Registry) WorktreeSetupMarkerPath(id string) string {
	return filepath.Join(r.dataDir, "worktree-setup", id+".ran")
}

// WorktreeSetupStatus reports whether the worktree-setup script should run
// for id: it must be a Worktree, have a non-empty script, and have no
// marker file yet.
func (r *Registry) WorktreeSetupStatus(id string) (shouldRun bool, script string, err error) {
	e, ok := r.Get(id)
	if !ok {
		return false, "", ErrNotFound
	}
	if e.Kind != KindWorktree || e.Settings.WorktreeSetupScript == "" {
		return false, e.Settings.WorktreeSetupScript, nil
	}
	if _, statErr := os.Stat(r.WorktreeSetupMarkerPath(id)); statErr == nil {
		return false, e.Settings.WorktreeSetupScript, nil
	}
	return true, e.Settings.WorktreeSetupScript, nil
}

// WorktreeSetupMarkRan creates the marker file for id. Idempotent.
func (r *Registry) WorktreeSetupMarkRan(id string) error {
	dir := filepath.Join(r.dataDir, "worktree-setup")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create worktree-setup dir: %w", err)
	}
	f, err := os.OpenFile(r.WorktreeSetupMarkerPath(id), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	return f.Close()
}

// WorktreesRootFor returns <data_dir>/worktrees/<parentID>, creating it if
// necessary.
func (r *Registry) WorktreesRootFor(parentID string) (string, error) {
	dir := filepath.Join(r.dataDir, "worktrees", parentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create worktrees dir: %w", err)
	}
	return dir, nil
}
