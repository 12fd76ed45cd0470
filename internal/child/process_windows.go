//go:build windows

package child

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op placeholder on Windows; a complete port would
// assign the child to a job object created with CreateJobObject and
// AssignProcessToJobObject so TerminateJobObject tears down the whole tree.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup falls back to killing the single PID; see setProcessGroup.
func killProcessGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}
