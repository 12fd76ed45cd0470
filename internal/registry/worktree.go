package registry

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// runGit runs git with args in dir and returns combined stderr on failure.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %v: %w: %s", args, err, stderr.String())
	}
	return stdout.String(), nil
}

// AddWorktree creates a git worktree for branch off parentID's repo at
// <data_dir>/worktrees/<parentID>/<name>, registers it, and invokes
// trySpawn before persisting (all-or-nothing, mirroring AddWorkspace).
func (r *Registry) AddWorktree(parentID, name, branch string, createBranch bool, trySpawn func(Entry) error) (Entry, error) {
	parent, ok := r.Get(parentID)
	if !ok {
		return Entry{}, ErrNotFound
	}
	if parent.Kind != KindMain {
		return Entry{}, fmt.Errorf("worktrees may only be added under a Main workspace")
	}

	root, err := r.WorktreesRootFor(parentID)
	if err != nil {
		return Entry{}, err
	}
	dest := filepath.Join(root, name)
	if _, err := os.Stat(dest); err == nil {
		return Entry{}, fmt.Errorf("worktree destination already exists: %s", dest)
	}

	args := []string{"worktree", "add"}
	if createBranch {
		args = append(args, "-b", branch, dest)
	} else {
		args = append(args, dest, branch)
	}
	if _, err := runGit(parent.Path, args...); err != nil {
		return Entry{}, fmt.Errorf("git worktree add: %w", err)
	}

	now := time.Now().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      dest,
		Kind:      KindWorktree,
		ParentID:  parentID,
		Worktree:  &WorktreeInfo{Branch: branch},
		Settings:  Settings{WorktreeSetupScript: parent.Settings.WorktreeSetupScript},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if trySpawn != nil {
		if err := trySpawn(entry); err != nil {
			_, _ = runGit(parent.Path, "worktree", "remove", "--force", dest)
			return Entry{}, err
		}
	}

	if err := r.Insert(entry); err != nil {
		_, _ = runGit(parent.Path, "worktree", "remove", "--force", dest)
		return Entry{}, err
	}
	return entry, nil
}

// missingWorktreeSubstrings are the fragments git is known to emit (across
// the locales observed in practice) when `git worktree remove` is pointed
// at a worktree whose directory it has already lost track of. Matching is
// best-effort per §4E: there is no structured "missing worktree" error
// code to check instead.
var missingWorktreeSubstrings = []string{
	"is missing",
	"is not a working tree",
	"is not a working directory",
	"no such file or directory",
}

func isMissingWorktreeError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, frag := range missingWorktreeSubstrings {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// RemoveWorktree tears down the git worktree and removes its entry. The
// caller must have already stopped any running session for id. Per §4E, if
// git reports the worktree directory is already missing, this falls back
// to plain directory removal and still drops the entry rather than leaving
// it stuck registered forever.
func (r *Registry) RemoveWorktree(id string) error {
	e, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if e.Kind != KindWorktree {
		return fmt.Errorf("%s is not a worktree", id)
	}
	parent, ok := r.Get(e.ParentID)
	if ok {
		if _, err := runGit(parent.Path, "worktree", "remove", "--force", e.Path); err != nil {
			if !isMissingWorktreeError(err) {
				return fmt.Errorf("git worktree remove: %w", err)
			}
			_, _ = runGit(parent.Path, "worktree", "prune")
			_ = os.RemoveAll(e.Path)
		}
	} else {
		// Parent already gone; best-effort directory cleanup.
		_ = os.RemoveAll(e.Path)
	}
	_ = os.Remove(r.WorktreeSetupMarkerPath(id))
	return r.Remove(id)
}

// RenameWorktree renames id's git branch from its current tracked branch
// to newBranch and moves its worktree directory to newPath — both assumed
// already uniquified by the caller. Per §4E, if `git worktree move` fails
// after the branch rename already succeeded, the branch rename is rolled
// back before the error is returned, so a failed move never leaves the
// repository's branch and registry state disagreeing.
func (r *Registry) RenameWorktree(id, newBranch, newPath string) (Entry, error) {
	e, ok := r.Get(id)
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.Kind != KindWorktree || e.Worktree == nil {
		return Entry{}, fmt.Errorf("%s is not a worktree", id)
	}
	oldBranch := e.Worktree.Branch

	if _, err := runGit(e.Path, "branch", "-m", oldBranch, newBranch); err != nil {
		return Entry{}, fmt.Errorf("git branch -m: %w", err)
	}
	if _, err := runGit(e.Path, "worktree", "move", e.Path, newPath); err != nil {
		_, _ = runGit(e.Path, "branch", "-m", newBranch, oldBranch)
		return Entry{}, fmt.Errorf("git worktree move: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	prev := *entry
	entry.Path = newPath
	entry.Worktree = &WorktreeInfo{Branch: newBranch}
	entry.UpdatedAt = time.Now().UTC()
	if err := r.persistLocked(); err != nil {
		*entry = prev
		return Entry{}, err
	}
	return *entry, nil
}


// AddWorkspaceFromGitURL clones url into destParent/name and registers the
// clone as a Main workspace. Cleans up the partial clone on any failure.
func (r *Registry) AddWorkspaceFromGitURL(url, destParent, name, agentBinOverride string, trySpawn func(Entry) error) (Entry, error) {
	if name == "" {
		name = inferCloneName(url)
	}
	dest := filepath.Join(destParent, name)
	if _, err := os.Stat(dest); err == nil {
		return Entry{}, fmt.Errorf("clone destination already exists: %s", dest)
	}
	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create destination parent: %w", err)
	}
	if _, err := runGit(destParent, "clone", url, dest); err != nil {
		_ = os.RemoveAll(dest)
		return Entry{}, fmt.Errorf("git clone: %w", err)
	}
	entry, err := r.AddWorkspace(dest, agentBinOverride, trySpawn)
	if err != nil {
		_ = os.RemoveAll(dest)
		return Entry{}, err
	}
	return entry, nil
}

// AddClone is a thin variant of AddWorkspaceFromGitURL for cloning from a
// path already known to the registry (e.g. duplicating a Main workspace's
// repo into a sibling directory without going through git worktree). When
// the source has an origin remote, the clone's origin is then set to that
// same URL instead of the source's local path.
func (r *Registry) AddClone(sourceID, destParent, name, agentBinOverride string, trySpawn func(Entry) error) (Entry, error) {
	src, ok := r.Get(sourceID)
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry, err := r.AddWorkspaceFromGitURL(src.Path, destParent, name, agentBinOverride, trySpawn)
	if err != nil {
		return Entry{}, err
	}
	if out, err := runGit(src.Path, "remote", "get-url", "origin"); err == nil {
		if originURL := strings.TrimSpace(out); originURL != "" {
			_, _ = runGit(entry.Path, "remote", "set-url", "origin", originURL)
		}
	}
	return entry, nil
}

func inferCloneName(url string) string {
	base := filepath.Base(url)
	for _, suffix := range []string{".git"} {
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			base = base[:len(base)-len(suffix)]
		}
	}
	if base == "" || base == "." || base == "/" {
		return "workspace"
	}
	return base
}
