package ops

import (
	"reflect"
	"testing"
)

func TestParsePorcelainStatusBasic(t *testing.T) {
	out := " M foo.go\n?? new.go\nA  staged.go\n"
	entries := parsePorcelainStatus(out)
	want := []GitStatusEntry{
		{Status: "M", Path: "foo.go"},
		{Status: "??", Path: "new.go"},
		{Status: "A", Path: "staged.go"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %+v, want %+v", entries, want)
	}
}

func TestParsePorcelainStatusRename(t *testing.T) {
	out := "R  old.go -> new.go\n"
	entries := parsePorcelainStatus(out)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %+v", entries)
	}
	if entries[0].OldPath != "old.go" || entries[0].Path != "new.go" {
		t.Fatalf("unexpected rename parse: %+v", entries[0])
	}
}

func TestParsePorcelainStatusIgnoresShortLines(t *testing.T) {
	entries := parsePorcelainStatus("\nM\n")
	if len(entries) != 0 {
		t.Fatalf("expected no entries from malformed lines, got %+v", entries)
	}
}

func TestExpandWithRenamesAddsOldPathForWantedNewPath(t *testing.T) {
	status := []GitStatusEntry{
		{Status: "R", OldPath: "old.go", Path: "new.go"},
		{Status: "M", Path: "other.go"},
	}
	got := expandWithRenames(status, []string{"new.go"})
	want := []string{"new.go", "old.go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestExpandWithRenamesLeavesUnrelatedPathsAlone(t *testing.T) {
	status := []GitStatusEntry{
		{Status: "R", OldPath: "old.go", Path: "new.go"},
	}
	got := expandWithRenames(status, []string{"other.go"})
	want := []string{"other.go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
