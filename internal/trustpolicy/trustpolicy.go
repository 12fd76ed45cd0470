// Package trustpolicy implements the daemon's two whitelists (§7): which
// agent binary paths may be spawned, and which open_workspace_in commands
// and arguments may be shelled out to. Both exist so a malicious or
// corrupted settings payload cannot turn workspace configuration into
// arbitrary code execution.
package trustpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var agentBinNames = map[string]bool{
	"codex":     true,
	"codex.exe": true,
	"codex.cmd": true,
	"codex.bat": true,
}

// agentBinRoots lists directories an agent_bin path is allowed to resolve
// under. $HOME and %ProgramFiles% are expanded at check time.
func agentBinRoots() []string {
	home, _ := os.UserHomeDir()
	roots := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
	}
	if home != "" {
		roots = append(roots, filepath.Join(home, ".local", "bin"), filepath.Join(home, ".nvm"))
	}
	if runtime.GOOS == "windows" {
		if pf := os.Getenv("ProgramFiles"); pf != "" {
			roots = append(roots, pf)
		}
		if pf := os.Getenv("ProgramFiles(x86)"); pf != "" {
			roots = append(roots, pf)
		}
	}
	return roots
}

// CheckAgentBin validates a candidate agent_bin path or bare name.
//
// A path containing a separator must canonicalise to an existing regular,
// executable file with a whitelisted base name living under a whitelisted
// root. A bare name (no separator) must equal "codex" or "codex.exe",
// case-insensitively.
func CheckAgentBin(agentBin string) error {
	if agentBin == "" {
		return fmt.Errorf("agent_bin must not be empty")
	}
	if !strings.ContainsAny(agentBin, "/\\") {
		lower := strings.ToLower(agentBin)
		if lower == "codex" || lower == "codex.exe" {
			return nil
		}
		return fmt.Errorf("agent_bin %q is not a whitelisted binary name", agentBin)
	}

	resolved, err := filepath.EvalSymlinks(agentBin)
	if err != nil {
		return fmt.Errorf("agent_bin %q does not resolve to an existing file: %w", agentBin, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("agent_bin %q: %w", agentBin, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("agent_bin %q is not a regular file", agentBin)
	}

	base := filepath.Base(resolved)
	if !agentBinNames[base] && !agentBinNames[strings.ToLower(base)] {
		return fmt.Errorf("agent_bin %q has a non-whitelisted file name %q", agentBin, base)
	}

	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("agent_bin %q is not executable", agentBin)
	}

	resolvedAbs, err := filepath.Abs(resolved)
	if err != nil {
		return fmt.Errorf("agent_bin %q: resolve absolute path: %w", agentBin, err)
	}
	for _, root := range agentBinRoots() {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(rootAbs, resolvedAbs); err == nil && !strings.HasPrefix(rel, "..") {
			return nil
		}
	}
	return fmt.Errorf("agent_bin %q does not live under a whitelisted root", agentBin)
}

var openWorkspaceCommands = map[string]bool{
	"code":   true,
	"cursor": true,
	"zed":    true,
	"subl":   true,
	"idea":   true,
}

var openWorkspaceArgs = map[string]bool{
	"-n":             true,
	"-r":             true,
	"--new-window":   true,
	"--reuse-window": true,
	"-w":             true,
	"--wait":         true,
}

const maxOpenWorkspaceArgs = 8

// CheckOpenWorkspaceIn validates a requested open_workspace_in invocation:
// the command must be whitelisted, every argument must be drawn from the
// argument whitelist, and there may be at most 8 arguments.
func CheckOpenWorkspaceIn(command string, args []string) error {
	if !openWorkspaceCommands[command] {
		return fmt.Errorf("open_workspace_in command %q is not whitelisted", command)
	}
	if len(args) > maxOpenWorkspaceArgs {
		return fmt.Errorf("open_workspace_in accepts at most %d arguments, got %d", maxOpenWorkspaceArgs, len(args))
	}
	for _, a := range args {
		if !openWorkspaceArgs[a] {
			return fmt.Errorf("open_workspace_in argument %q is not whitelisted", a)
		}
	}
	return nil
}
