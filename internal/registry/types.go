package registry

import "time"

// Kind distinguishes a workspace's place in the parent/worktree hierarchy.
type Kind string

const (
	KindMain     Kind = "Main"
	KindWorktree Kind = "Worktree"
)

// WorktreeInfo holds the git branch a Worktree entry tracks.
type WorktreeInfo struct {
	Branch string `json:"branch"`
}

// Settings is the bag of workspace-scoped options carried alongside an
// Entry. Every field is optional; zero values mean "unset, inherit
// defaults".
type Settings struct {
	SortOrder           *int              `json:"sortOrder,omitempty"`
	Collapsed           bool              `json:"collapsed,omitempty"`
	DisplayName         string            `json:"displayName,omitempty"`
	AgentHome           string            `json:"agentHome,omitempty"`
	LaunchScript        string            `json:"launchScript,omitempty"`
	WorktreeSetupScript string            `json:"worktreeSetupScript,omitempty"`
	ThreadDisplayNames  map[string]string `json:"threadDisplayNames,omitempty"`
}

// Entry is the persisted unit of the registry (§3's WorkspaceEntry).
type Entry struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Path             string        `json:"path"`
	Kind             Kind          `json:"kind"`
	ParentID         string        `json:"parentId,omitempty"`
	Worktree         *WorktreeInfo `json:"worktree,omitempty"`
	AgentBinOverride string        `json:"agentBinOverride,omitempty"`
	Settings         Settings      `json:"settings"`
	SettingsRevision uint64        `json:"settingsRevision"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
