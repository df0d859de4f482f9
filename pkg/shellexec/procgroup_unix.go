//go:build unix

package shellexec

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group and arranges for
// context cancellation to kill the whole group, so pipelines spawned by the
// shell die with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
