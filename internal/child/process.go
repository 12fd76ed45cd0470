// Package child spawns and tears down the headless coding-agent subprocess
// that backs a single workspace session. It pipes stdin/stdout for
// line-delimited JSON and places the process in its own process group so
// that Stop reliably kills the whole tree, including grandchildren the
// agent spawns (language servers, sandboxes, ...).
package child

import (
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// SpawnError is returned by Spawn when the binary cannot be started. It
// carries the attempted path so the dispatcher can surface a structured
// spawn_failed error per §4B.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn_failed: %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Config describes how to spawn the agent binary.
type Config struct {
	// Bin is the resolved binary to execute (already vetted by the trust
	// policy; see internal/trustpolicy).
	Bin string
	// Args are additional CLI arguments.
	Args []string
	// WorkDir is the workspace's filesystem root.
	WorkDir string
	// ExtraEnv holds "KEY=VALUE" entries appended to the inherited
	// environment, e.g. an override for the agent's home directory.
	ExtraEnv []string
}

// Process wraps a running agent subprocess.
type Process struct {
	bin       string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	startTime time.Time

	mu      sync.Mutex
	stopped bool
}

// Spawn starts the agent binary with stdin/stdout piped and stderr
// discarded (not part of the contract; see §4B). The process is placed in
// its own process group on POSIX so Stop can tear down the whole tree.
func Spawn(cfg Config) (*Process, error) {
	cmd := exec.Command(cfg.Bin, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	if len(cfg.ExtraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.ExtraEnv...)
	}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Bin: cfg.Bin, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Bin: cfg.Bin, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &SpawnError{Bin: cfg.Bin, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, &SpawnError{Bin: cfg.Bin, Err: err}
	}

	log.Printf("child process started: bin=%s pid=%d workdir=%s", cfg.Bin, cmd.Process.Pid, cfg.WorkDir)

	// Drain stderr so a chatty child never blocks on a full pipe.
	go func() { _, _ = io.Copy(io.Discard, stderr) }()

	return &Process{
		bin:       cfg.Bin,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		startTime: time.Now(),
	}, nil
}

// Stdin returns the writer to the child's stdin.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Stdout returns the reader from the child's stdout.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the reader from the child's stderr. Spawn already copies
// that pipe to io.Discard, so a reader here sees at most a fragment of it.
func (p *Process) Stderr() io.Reader { return p.stderr }

// PID returns the child's process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop tears the process group down. It closes stdin first to give the
// agent a chance to exit cleanly, then signals the process group, then
// sweeps any descendant PIDs that escaped the group (defence in depth
// against agents that re-parent children onto PID 1).
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	log.Printf("stopping child process: bin=%s pid=%d", p.bin, p.PID())

	p.stdin.Close()

	if p.cmd.Process != nil {
		killProcessGroup(p.cmd.Process.Pid)
		sweepDescendants(p.cmd.Process.Pid)
	}

	_ = p.cmd.Wait()
	return nil
}

// Wait blocks until the child exits and returns its exit error, if any.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// sweepDescendants best-effort kills any process whose parent is pid. Used
// as a fallback for platforms or agents where the process-group signal
// alone does not reach every grandchild.
func sweepDescendants(pid int) {
	procs, err := ps.Processes()
	if err != nil {
		return
	}
	for _, proc := range procs {
		if proc.PPid() == pid {
			killProcessGroup(proc.Pid())
			sweepDescendants(proc.Pid())
		}
	}
}
