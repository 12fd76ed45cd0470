package ops

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/workspace/codexmonitord/internal/gitutil"
)

// recordGitOpUsage is a best-effort usage accounting hook for a completed
// git operation: a failure here never fails the op itself, since usage
// accounting is observability, not the operation's contract.
func (d *Deps) recordGitOpUsage(workspaceID, kind string) {
	if err := d.RecordUsageEvent(workspaceID, kind, 0); err != nil {
		d.logger().Warn("failed to record usage event", "workspace_id", workspaceID, "kind", kind, "err", err)
	}
}

// runGit runs git with args in dir, returning stdout and a combined
// stderr-annotated error on failure.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %v: %w: %s", args, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// branchNeedsCreate reports whether branch must be created with `-b`
// (neither a local branch nor an origin remote-tracking branch exists yet), per
// §4E's add_worktree tri-state: existing local branch, existing remote
// branch, or brand new.
func branchNeedsCreate(repoPath, branch string) (bool, error) {
	if _, err := runGit(repoPath, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
		return false, nil
	}
	if _, err := runGit(repoPath, "rev-parse", "--verify", "refs/remotes/origin/"+branch); err == nil {
		return false, nil
	}
	return true, nil
}

// inferRemote returns the remote that branch tracks, falling back to an
// error the caller turns into "origin".
func inferRemote(repoPath, branch string) (string, error) {
	out, err := runGit(repoPath, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if err != nil {
		return "", err
	}
	parts := strings.SplitN(strings.TrimSpace(out), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("no upstream for %s", branch)
	}
	return parts[0], nil
}

// GitStatusEntry is one line of `git status --porcelain=v1`, already split
// into its path and renamed-from counterpart (if any).
type GitStatusEntry struct {
	Path    string `json:"path"`
	OldPath string `json:"oldPath,omitempty"`
	Status  string `json:"status"`
}

// GitStatus returns the working tree status for workspaceID's resolved git
// root.
func (d *Deps) GitStatus(workspaceID string) ([]GitStatusEntry, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return nil, err
	}
	root, err := gitutil.ResolveGitRoot(entry.Path)
	if err != nil {
		return nil, err
	}
	out, err := runGit(root, "status", "--porcelain=v1")
	if err != nil {
		return nil, err
	}
	return parsePorcelainStatus(out), nil
}

func parsePorcelainStatus(out string) []GitStatusEntry {
	var entries []GitStatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		status := strings.TrimSpace(line[:2])
		rest := line[3:]
		e := GitStatusEntry{Status: status}
		if idx := strings.Index(rest, " -> "); idx >= 0 {
			e.OldPath = rest[:idx]
			e.Path = rest[idx+4:]
		} else {
			e.Path = rest
		}
		entries = append(entries, e)
	}
	return entries
}

// expandWithRenames returns paths plus, for every path that is the new
// side of a rename in status, its old-side counterpart too — so staging or
// reverting a renamed file always touches both halves.
func expandWithRenames(status []GitStatusEntry, paths []string) []string {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	out := append([]string(nil), paths...)
	for _, e := range status {
		if e.OldPath != "" && want[e.Path] {
			out = append(out, e.OldPath)
		}
	}
	return out
}

// StageGitFile stages paths, expanding renamed counterparts from the
// current status first.
func (d *Deps) StageGitFile(workspaceID string, paths []string) error {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return err
	}
	root, err := gitutil.ResolveGitRoot(entry.Path)
	if err != nil {
		return err
	}
	status, err := d.GitStatus(workspaceID)
	if err != nil {
		return err
	}
	args := append([]string{"add", "--"}, expandWithRenames(status, paths)...)
	_, err = runGit(root, args...)
	return err
}

// RevertGitFile discards working-tree changes to paths (checkout from
// HEAD / restore), expanding renamed counterparts first.
func (d *Deps) RevertGitFile(workspaceID string, paths []string) error {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return err
	}
	root, err := gitutil.ResolveGitRoot(entry.Path)
	if err != nil {
		return err
	}
	status, err := d.GitStatus(workspaceID)
	if err != nil {
		return err
	}
	full := expandWithRenames(status, paths)
	args := append([]string{"checkout", "--"}, full...)
	_, err = runGit(root, args...)
	return err
}

// GitPush pushes HEAD to its configured upstream, creating one against
// origin/<branch> if none is set.
func (d *Deps) GitPush(workspaceID string) (string, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return "", err
	}
	root, err := gitutil.ResolveGitRoot(entry.Path)
	if err != nil {
		return "", err
	}
	branch, err := currentBranch(root)
	if err != nil {
		return "", err
	}
	var out string
	_, upstreamErr := runGit(root, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if upstreamErr == nil {
		out, err = runGit(root, "push")
	} else {
		out, err = runGit(root, "push", "-u", "origin", branch)
	}
	if err != nil {
		return "", err
	}
	d.recordGitOpUsage(workspaceID, "git_push")
	return out, nil
}

// GitPull pulls with --autostash, falling back to a manual stash/pull/pop
// sequence for git versions that predate --autostash.
func (d *Deps) GitPull(workspaceID string) (string, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return "", err
	}
	root, err := gitutil.ResolveGitRoot(entry.Path)
	if err != nil {
		return "", err
	}
	out, err := runGit(root, "pull", "--autostash")
	if err == nil {
		d.recordGitOpUsage(workspaceID, "git_pull")
		return out, nil
	}
	if !strings.Contains(err.Error(), "unknown option") && !strings.Contains(err.Error(), "autostash") {
		return "", err
	}
	if _, serr := runGit(root, "stash", "push", "-u"); serr == nil {
		defer runGit(root, "stash", "pop")
	}
	out, err = runGit(root, "pull")
	if err != nil {
		return "", err
	}
	d.recordGitOpUsage(workspaceID, "git_pull")
	return out, nil
}

// GitSync is pull-then-push.
func (d *Deps) GitSync(workspaceID string) (string, error) {
	pullOut, err := d.GitPull(workspaceID)
	if err != nil {
		return "", fmt.Errorf("pull: %w", err)
	}
	pushOut, err := d.GitPush(workspaceID)
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}
	return pullOut + "\n" + pushOut, nil
}

func currentBranch(root string) (string, error) {
	out, err := runGit(root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "" || branch == "HEAD" {
		return "", fmt.Errorf("repository is in a detached HEAD state")
	}
	return branch, nil
}
