// Package gitutil provides read-only git introspection without shelling
// out: resolving a workspace's git root and enumerating git roots under a
// directory tree (plain filesystem checks for a .git entry), and a
// fast-path status check that opens the repository with go-git. Mutating
// operations (stage/commit/push/pull/sync) stay on the `git` CLI in
// internal/ops, which mirrors what real client tooling does and handles
// credential helpers/hooks the daemon should not reimplement.
package gitutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// ResolveGitRoot walks up from path until it finds a directory containing
// .git, returning that directory. It returns an error if no such ancestor
// exists.
func ResolveGitRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	dir := abs
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no git root found above %s", path)
		}
		dir = parent
	}
}

// ListGitRoots walks root and returns every directory containing a .git
// entry, skipping into subdirectories only when the current one is not
// itself a git root (nested repos inside node_modules etc. are common
// noise the caller does not want).
func ListGitRoots(root string) ([]string, error) {
	var roots []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
			roots = append(roots, path)
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return roots, nil
}

// Status is the subset of `git status` the fast path needs: whether the
// tree is dirty and the current branch name (empty if detached).
type Status struct {
	Branch string
	Dirty  bool
	Ahead  int
	Behind int
}

// FastStatus opens repoPath with go-git and reports a coarse dirty/branch
// summary without shelling out. Callers needing full porcelain detail
// (per-file status, renames) use the `git status --porcelain` wrapper in
// internal/ops instead.
func FastStatus(repoPath string) (Status, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Status{}, fmt.Errorf("open repo at %s: %w", repoPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return Status{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("open worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("compute status: %w", err)
	}

	branch := ""
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return Status{Branch: branch, Dirty: !st.IsClean()}, nil
}
