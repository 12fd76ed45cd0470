//go:build !windows

package child

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in a new process group so the whole tree can
// be torn down with a single signal to -pid.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group led by pid.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
