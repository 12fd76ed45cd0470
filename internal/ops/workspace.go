package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/workspace/codexmonitord/internal/registry"
)

// WorkspaceInfo is the wire-visible projection of a registry.Entry plus its
// live-session status, returned by list_workspaces and every Add*/rename
// operation.
type WorkspaceInfo struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Path             string            `json:"path"`
	Kind             string            `json:"kind"`
	ParentID         string            `json:"parentId,omitempty"`
	Branch           string            `json:"branch,omitempty"`
	AgentBinOverride string            `json:"agentBinOverride,omitempty"`
	Settings         registry.Settings `json:"settings"`
	SettingsRevision uint64            `json:"settingsRevision"`
	Connected        bool              `json:"connected"`
	CreatedAt        string            `json:"createdAt"`
	UpdatedAt        string            `json:"updatedAt"`
}

func (d *Deps) toInfo(e registry.Entry) WorkspaceInfo {
	info := WorkspaceInfo{
		ID:               e.ID,
		Name:             e.Name,
		Path:             e.Path,
		Kind:             string(e.Kind),
		ParentID:         e.ParentID,
		AgentBinOverride: e.AgentBinOverride,
		Settings:         e.Settings,
		SettingsRevision: e.SettingsRevision,
		CreatedAt:        e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:        e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if e.Worktree != nil {
		info.Branch = e.Worktree.Branch
	}
	if s, ok := d.Sessions.Get(e.ID); ok {
		info.Connected = s.Alive()
	}
	return info
}

// ListWorkspaces returns every registered workspace, already sorted by the
// registry (sort_order ASC with unset last, then name, then id).
func (d *Deps) ListWorkspaces() []WorkspaceInfo {
	entries := d.Registry.List()
	out := make([]WorkspaceInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, d.toInfo(e))
	}
	return out
}

// IsWorkspacePathDir reports whether path exists and is a directory.
func IsWorkspacePathDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// AddWorkspace registers path as a new Main workspace and attempts to spawn
// its session; on spawn failure nothing is persisted (§4E all-or-nothing).
func (d *Deps) AddWorkspace(path, agentBinOverride string) (WorkspaceInfo, error) {
	entry, err := d.Registry.AddWorkspace(path, agentBinOverride, d.Sessions.Spawn)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	return d.toInfo(entry), nil
}

// AddWorkspaceFromGitURL clones url and registers the result as a Main
// workspace. target must be a single path component, never "." or "..".
func (d *Deps) AddWorkspaceFromGitURL(url, destParent, targetName, agentBinOverride string) (WorkspaceInfo, error) {
	if targetName != "" {
		if err := validateSingleComponent(targetName); err != nil {
			return WorkspaceInfo{}, err
		}
	}
	info, err := os.Stat(destParent)
	if err != nil || !info.IsDir() {
		return WorkspaceInfo{}, fmt.Errorf("destination_parent is not an existing directory: %s", destParent)
	}
	entry, err := d.Registry.AddWorkspaceFromGitURL(url, destParent, targetName, agentBinOverride, d.Sessions.Spawn)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	return d.toInfo(entry), nil
}

// AddClone duplicates sourceID's working directory under copiesFolder/
// copyName, rewriting origin to match the source's origin remote when it
// has one.
func (d *Deps) AddClone(sourceID, copyName, copiesFolder string) (WorkspaceInfo, error) {
	if err := validateSingleComponent(copyName); err != nil {
		return WorkspaceInfo{}, err
	}
	uniqued := uniquify(copiesFolder, copyName)
	entry, err := d.Registry.AddClone(sourceID, copiesFolder, uniqued, "", d.Sessions.Spawn)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	return d.toInfo(entry), nil
}

// AddWorktree creates a git worktree for branch off parentID, optionally
// copying the parent's AGENTS.md into the new worktree.
func (d *Deps) AddWorktree(parentID, branch, name string, copyAgentsMD bool) (WorkspaceInfo, error) {
	parent, err := d.requireEntry(parentID)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	if parent.Kind != registry.KindMain {
		return WorkspaceInfo{}, fmt.Errorf("parent %q is not a Main workspace", parentID)
	}
	if name == "" {
		name = sanitizeFolderName(branch)
	} else {
		name = sanitizeFolderName(name)
	}

	root, err := d.Registry.WorktreesRootFor(parentID)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	name = uniquify(root, name)

	createBranch, err := branchNeedsCreate(parent.Path, branch)
	if err != nil {
		return WorkspaceInfo{}, err
	}

	entry, err := d.Registry.AddWorktree(parentID, name, branch, createBranch, d.Sessions.Spawn)
	if err != nil {
		return WorkspaceInfo{}, err
	}

	if copyAgentsMD {
		copyAgentsMDFile(parent.Path, entry.Path)
	}

	return d.toInfo(entry), nil
}

// ConnectWorkspace ensures id has a live session, spawning one if needed.
func (d *Deps) ConnectWorkspace(id string) error {
	if s, ok := d.Sessions.Get(id); ok && s.Alive() {
		return nil
	}
	entry, err := d.requireEntry(id)
	if err != nil {
		return err
	}
	return d.Sessions.Spawn(entry)
}

// RemoveWorkspace tears down id and, if it is a Main workspace, every
// worktree child first. Per §4E, a per-child failure leaves the parent
// registered and the error describes which children could not be removed.
func (d *Deps) RemoveWorkspace(id string) error {
	entry, err := d.requireEntry(id)
	if err != nil {
		return err
	}

	if entry.Kind == registry.KindMain {
		var failures []string
		for _, child := range d.Registry.Children(id) {
			if err := d.removeWorktreeInternal(child.ID); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", child.ID, err))
			}
		}
		if len(failures) > 0 {
			return fmt.Errorf("failed to remove %d worktree(s): %s", len(failures), strings.Join(failures, "; "))
		}
	}

	_ = d.Sessions.Stop(id)
	return d.Registry.Remove(id)
}

// RemoveWorktree tears down a single worktree workspace.
func (d *Deps) RemoveWorktree(id string) error {
	return d.removeWorktreeInternal(id)
}

func (d *Deps) removeWorktreeInternal(id string) error {
	_ = d.Sessions.Stop(id)
	return d.Registry.RemoveWorktree(id)
}

// RenameWorktree renames id's tracked branch (locally) and moves the
// worktree directory to match, per §4E: both the new branch name and the
// new directory are uniquified against what already exists before the git
// operations run, the branch rename is rolled back if the directory move
// fails, and if the workspace was connected its session is respawned
// against the new path.
func (d *Deps) RenameWorktree(id, newBranch string) (WorkspaceInfo, error) {
	newBranch = strings.TrimSpace(newBranch)
	if newBranch == "" {
		return WorkspaceInfo{}, fmt.Errorf("new_branch must not be empty")
	}
	entry, err := d.requireEntry(id)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	if entry.Kind != registry.KindWorktree {
		return WorkspaceInfo{}, fmt.Errorf("%s is not a worktree", id)
	}

	uniqueBranch := uniquifyBranch(entry.Path, newBranch)
	parentDir := filepath.Dir(entry.Path)
	uniqueName := uniquify(parentDir, sanitizeFolderName(uniqueBranch))
	newPath := filepath.Join(parentDir, uniqueName)

	wasConnected := false
	if s, ok := d.Sessions.Get(id); ok && s.Alive() {
		wasConnected = true
		_ = d.Sessions.Stop(id)
	}

	renamed, err := d.Registry.RenameWorktree(id, uniqueBranch, newPath)
	if err != nil {
		return WorkspaceInfo{}, err
	}

	if wasConnected {
		_ = d.Sessions.Spawn(renamed)
	}
	return d.toInfo(renamed), nil
}

// uniquifyBranch appends -2, -3, ... to name until no local branch by that
// name exists in the repo at repoPath.
func uniquifyBranch(repoPath, name string) string {
	candidate := name
	for i := 2; ; i++ {
		if _, err := runGit(repoPath, "rev-parse", "--verify", "refs/heads/"+candidate); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
}

// RenameWorktreeUpstream pushes an already-renamed local branch to the
// remote that tracked oldBranch (falling back to origin), deletes
// oldBranch there, and sets the new upstream. Unlike RenameWorktree this
// assumes the local `git branch -m` has already happened.
func (d *Deps) RenameWorktreeUpstream(id, oldBranch, newBranch string) (WorkspaceInfo, error) {
	entry, err := d.requireEntry(id)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	if entry.Kind != registry.KindWorktree {
		return WorkspaceInfo{}, fmt.Errorf("%s is not a worktree", id)
	}

	remote, err := inferRemote(entry.Path, oldBranch)
	if err != nil {
		remote = "origin"
	}
	if _, err := runGit(entry.Path, "push", remote, "-u", newBranch); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("git push -u %s %s: %w", remote, newBranch, err)
	}
	_, _ = runGit(entry.Path, "push", remote, "--delete", oldBranch)

	return d.toInfo(entry), nil
}

// UpdateWorkspaceSettings applies a CAS settings write.
func (d *Deps) UpdateWorkspaceSettings(id string, expectedRevision uint64, settings registry.Settings) (WorkspaceInfo, error) {
	entry, err := d.Registry.UpdateSettings(id, expectedRevision, settings)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	return d.toInfo(entry), nil
}

// UpdateWorkspaceAgentBin replaces id's per-workspace agent binary override.
func (d *Deps) UpdateWorkspaceAgentBin(id, agentBin string) (WorkspaceInfo, error) {
	entry, err := d.Registry.UpdateAgentBin(id, agentBin)
	if err != nil {
		return WorkspaceInfo{}, err
	}
	return d.toInfo(entry), nil
}

// WorktreeSetupStatus reports whether id's worktree-setup script should
// still run.
func (d *Deps) WorktreeSetupStatus(id string) (shouldRun bool, script string, err error) {
	return d.Registry.WorktreeSetupStatus(id)
}

// WorktreeSetupMarkRan records that id's worktree-setup script has run.
func (d *Deps) WorktreeSetupMarkRan(id string) error {
	return d.Registry.WorktreeSetupMarkRan(id)
}

func validateSingleComponent(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("name %q must be a single path component", name)
	}
	return nil
}

func sanitizeFolderName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == '/':
			b.WriteRune('-')
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		out = "worktree"
	}
	return out
}

// uniquify appends -2, -3, ... to name until <dir>/name does not exist.
func uniquify(dir, name string) string {
	candidate := name
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
}

func copyAgentsMDFile(parentPath, worktreePath string) {
	dst := filepath.Join(worktreePath, "AGENTS.md")
	if _, err := os.Stat(dst); err == nil {
		return // worktree already has one
	}
	data, err := os.ReadFile(filepath.Join(parentPath, "AGENTS.md"))
	if err != nil {
		return
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, dst)
}
