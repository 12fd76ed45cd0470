package ops

import "testing"

func TestParseUnifiedDiffEmpty(t *testing.T) {
	if got := parseUnifiedDiff("   \n"); got != nil {
		t.Fatalf("expected nil for blank diff, got %+v", got)
	}
}

func TestParseUnifiedDiffClassifiesModified(t *testing.T) {
	diff := `diff --git a/foo.go b/foo.go
index 1234567..89abcde 100644
--- a/foo.go
+++ b/foo.go
@@ -1,2 +1,3 @@
 package foo
+var x int
-var y int
`
	files := parseUnifiedDiff(diff)
	if len(files) != 1 {
		t.Fatalf("expected one file, got %+v", files)
	}
	f := files[0]
	if f.Status != "M" || f.Path != "foo.go" || f.OldPath != "" {
		t.Fatalf("unexpected classification: %+v", f)
	}
	if f.Additions != 1 || f.Deletions != 1 {
		t.Fatalf("unexpected add/delete counts: %+v", f)
	}
}

func TestParseUnifiedDiffClassifiesAddedAndDeleted(t *testing.T) {
	diff := `diff --git a/new.go b/new.go
new file mode 100644
index 0000000..1234567
--- /dev/null
+++ b/new.go
@@ -0,0 +1 @@
+package new
diff --git a/old.go b/old.go
deleted file mode 100644
index 1234567..0000000
--- a/old.go
+++ /dev/null
@@ -1 +0,0 @@
-package old
`
	files := parseUnifiedDiff(diff)
	if len(files) != 2 {
		t.Fatalf("expected two files, got %+v", files)
	}
	if files[0].Status != "A" || files[0].Path != "new.go" {
		t.Fatalf("unexpected added-file classification: %+v", files[0])
	}
	if files[1].Status != "D" {
		t.Fatalf("unexpected deleted-file classification: %+v", files[1])
	}
}

func TestParseUnifiedDiffClassifiesRename(t *testing.T) {
	diff := `diff --git a/old.go b/new.go
similarity index 100%
rename from old.go
rename to new.go
`
	files := parseUnifiedDiff(diff)
	if len(files) != 1 {
		t.Fatalf("expected one file, got %+v", files)
	}
	f := files[0]
	if f.Status != "R" || f.OldPath != "old.go" || f.Path != "new.go" {
		t.Fatalf("unexpected rename classification: %+v", f)
	}
}

func TestParseDiffGitHeaderExtractsPaths(t *testing.T) {
	path, oldPath := parseDiffGitHeader("diff --git a/foo.go b/bar.go")
	if path != "bar.go" || oldPath != "foo.go" {
		t.Fatalf("got path=%q oldPath=%q", path, oldPath)
	}
}

func TestParseDiffGitHeaderMalformedReturnsEmpty(t *testing.T) {
	path, oldPath := parseDiffGitHeader("not a header")
	if path != "" || oldPath != "" {
		t.Fatalf("expected empty results, got path=%q oldPath=%q", path, oldPath)
	}
}
