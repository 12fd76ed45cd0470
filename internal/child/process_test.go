package child

import (
	"bufio"
	"strings"
	"testing"
)

func TestSpawnPipesStdio(t *testing.T) {
	p, err := Spawn(Config{
		Bin:     "cat",
		WorkDir: ".",
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	defer p.Stop()

	if _, err := p.Stdin().Write([]byte("hello\n")); err != nil {
		t.Fatalf("write stdin: %v", err)
	}

	reader := bufio.NewReader(p.Stdout())
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if strings.TrimRight(line, "\n") != "hello" {
		t.Fatalf("got %q, want %q", line, "hello")
	}
}

func TestSpawnFailureIsStructured(t *testing.T) {
	_, err := Spawn(Config{Bin: "/nonexistent/binary/path/codex", WorkDir: "."})
	if err == nil {
		t.Fatal("expected an error")
	}
	var spawnErr *SpawnError
	if !asSpawnError(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %T: %v", err, err)
	}
	if spawnErr.Bin != "/nonexistent/binary/path/codex" {
		t.Fatalf("unexpected bin in error: %s", spawnErr.Bin)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p, err := Spawn(Config{Bin: "cat", WorkDir: "."})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}
}

func asSpawnError(err error, target **SpawnError) bool {
	se, ok := err.(*SpawnError)
	if !ok {
		return false
	}
	*target = se
	return true
}
