package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/workspace/codexmonitord/internal/gitutil"
)

// runGH runs the GitHub CLI with args in dir and returns stdout, wrapping
// stderr into the error on failure.
func runGH(dir string, args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh %v: %w: %s", args, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (d *Deps) ghRoot(workspaceID string) (string, error) {
	entry, err := d.requireEntry(workspaceID)
	if err != nil {
		return "", err
	}
	return gitutil.ResolveGitRoot(entry.Path)
}

// GitHubPullRequest is the subset of `gh pr view --json` fields the daemon
// forwards.
type GitHubPullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
	Body   string `json:"body"`
}

// GetGitHubPullRequest fetches a single PR by number.
func (d *Deps) GetGitHubPullRequest(workspaceID string, prNumber int) (GitHubPullRequest, error) {
	root, err := d.ghRoot(workspaceID)
	if err != nil {
		return GitHubPullRequest{}, err
	}
	out, err := runGH(root, "pr", "view", strconv.Itoa(prNumber), "--json", "number,title,state,url,body")
	if err != nil {
		return GitHubPullRequest{}, err
	}
	var pr GitHubPullRequest
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return GitHubPullRequest{}, fmt.Errorf("parse gh pr view output: %w", err)
	}
	return pr, nil
}

// ListGitHubPullRequests lists open PRs for the workspace's repo.
func (d *Deps) ListGitHubPullRequests(workspaceID string, limit uint32) ([]GitHubPullRequest, error) {
	root, err := d.ghRoot(workspaceID)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = 30
	}
	out, err := runGH(root, "pr", "list", "--limit", strconv.Itoa(int(limit)), "--json", "number,title,state,url,body")
	if err != nil {
		return nil, err
	}
	var prs []GitHubPullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse gh pr list output: %w", err)
	}
	return prs, nil
}

// DiffFile is one file entry of a parsed unified diff, with its change
// status classified from the header lines that follow its `diff --git`
// line, per §4H's best-effort parser.
type DiffFile struct {
	Path       string `json:"path"`
	OldPath    string `json:"oldPath,omitempty"`
	Status     string `json:"status"` // A, D, R, M
	Diff       string `json:"diff"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
}

// GetGitHubPullRequestDiff fetches the unified diff for prNumber and splits
// it into per-file entries.
func (d *Deps) GetGitHubPullRequestDiff(workspaceID string, prNumber int) ([]DiffFile, error) {
	root, err := d.ghRoot(workspaceID)
	if err != nil {
		return nil, err
	}
	out, err := runGH(root, "pr", "diff", strconv.Itoa(prNumber))
	if err != nil {
		return nil, err
	}
	return parseUnifiedDiff(out), nil
}

// parseUnifiedDiff splits a unified diff on "diff --git" headers and
// classifies each entry's status from the header lines that follow
// ("new file mode" -> A, "deleted file mode" -> D, "rename from/to" -> R,
// else M), per §4H.
func parseUnifiedDiff(diff string) []DiffFile {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	chunks := splitOnDiffGitHeader(diff)
	out := make([]DiffFile, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, classifyDiffChunk(chunk))
	}
	return out
}

func splitOnDiffGitHeader(diff string) []string {
	lines := strings.Split(diff, "\n")
	var chunks []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		if len(current) > 0 {
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

func classifyDiffChunk(chunk string) DiffFile {
	lines := strings.Split(chunk, "\n")
	f := DiffFile{Status: "M", Diff: chunk}
	if len(lines) > 0 {
		f.Path, f.OldPath = parseDiffGitHeader(lines[0])
	}
	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "new file mode"):
			f.Status = "A"
		case strings.HasPrefix(line, "deleted file mode"):
			f.Status = "D"
		case strings.HasPrefix(line, "rename from "):
			f.Status = "R"
			f.OldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			f.Path = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "+++ b/"):
			f.Path = strings.TrimPrefix(line, "+++ b/")
		case strings.HasPrefix(line, "--- a/"):
			f.OldPath = strings.TrimPrefix(line, "--- a/")
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			f.Additions++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			f.Deletions++
		}
	}
	if f.OldPath == f.Path {
		f.OldPath = ""
	}
	return f
}

// parseDiffGitHeader extracts the a/ and b/ paths from a "diff --git
// a/foo b/bar" header line, tolerating paths that themselves contain
// spaces by splitting on the " b/" marker.
func parseDiffGitHeader(line string) (path, oldPath string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	idx := strings.Index(rest, " b/")
	if idx < 0 {
		return "", ""
	}
	aSide := strings.TrimPrefix(rest[:idx], "a/")
	bSide := strings.TrimPrefix(rest[idx+3:], "")
	return bSide, aSide
}
