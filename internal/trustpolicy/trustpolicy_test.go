package trustpolicy

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckAgentBinBareName(t *testing.T) {
	if err := CheckAgentBin("codex"); err != nil {
		t.Fatalf("expected bare 'codex' to pass: %v", err)
	}
	if err := CheckAgentBin("CODEX.EXE"); err != nil {
		t.Fatalf("expected case-insensitive bare name to pass: %v", err)
	}
	if err := CheckAgentBin("python"); err == nil {
		t.Fatalf("expected non-whitelisted bare name to fail")
	}
}

func TestCheckAgentBinPathOutsideWhitelistedRoot(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "codex")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := CheckAgentBin(bin); err == nil {
		t.Fatalf("expected path outside whitelisted roots to fail")
	}
}

func TestCheckAgentBinPathWrongName(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home dir available")
	}
	if runtime.GOOS == "windows" {
		t.Skip("posix-specific test")
	}
	dir := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Skip("cannot create under home .local/bin in this environment")
	}
	bin := filepath.Join(dir, "not-codex")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	defer os.Remove(bin)
	if err := CheckAgentBin(bin); err == nil {
		t.Fatalf("expected non-whitelisted file name to fail")
	}
}

func TestCheckOpenWorkspaceIn(t *testing.T) {
	if err := CheckOpenWorkspaceIn("code", []string{"-n", "--new-window"}); err != nil {
		t.Fatalf("expected whitelisted command/args to pass: %v", err)
	}
	if err := CheckOpenWorkspaceIn("rm", nil); err == nil {
		t.Fatalf("expected non-whitelisted command to fail")
	}
	if err := CheckOpenWorkspaceIn("code", []string{"--exec", "rm -rf /"}); err == nil {
		t.Fatalf("expected non-whitelisted argument to fail")
	}
	tooMany := make([]string, 9)
	for i := range tooMany {
		tooMany[i] = "-n"
	}
	if err := CheckOpenWorkspaceIn("code", tooMany); err == nil {
		t.Fatalf("expected more than 8 args to fail")
	}
}
