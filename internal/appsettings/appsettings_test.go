package appsettings

import (
	"path/filepath"
	"testing"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	dataDir := t.TempDir()
	s, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Get(); got.DefaultAgentBin != "" {
		t.Fatalf("expected empty settings, got %+v", got)
	}
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	dataDir := t.TempDir()
	s, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := s.Update(func(st *Settings) {
		st.DefaultAgentBin = "/usr/local/bin/codex"
		st.FeatureFlags = map[string]bool{"experimental_review": true}
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	s2, err := Open(dataDir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := s2.Get()
	if got.DefaultAgentBin != "/usr/local/bin/codex" {
		t.Fatalf("agent bin not persisted, got %q", got.DefaultAgentBin)
	}
	if !got.FeatureFlags["experimental_review"] {
		t.Fatalf("feature flag not persisted")
	}
}

func TestResolveAgentBinFallbackChain(t *testing.T) {
	dataDir := t.TempDir()
	s, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if got := s.ResolveAgentBin(""); got != "codex" {
		t.Fatalf("expected bare codex fallback, got %q", got)
	}

	if _, err := s.Update(func(st *Settings) { st.DefaultAgentBin = "/opt/codex" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.ResolveAgentBin(""); got != "/opt/codex" {
		t.Fatalf("expected process-wide default, got %q", got)
	}

	if got := s.ResolveAgentBin("/workspace/codex-override"); got != "/workspace/codex-override" {
		t.Fatalf("expected workspace override to win, got %q", got)
	}
}

func TestPersistedFileLivesUnderDataDir(t *testing.T) {
	dataDir := t.TempDir()
	s, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Update(func(st *Settings) { st.Theme = "dark" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.path != filepath.Join(dataDir, "settings.json") {
		t.Fatalf("unexpected settings path: %s", s.path)
	}
}
