//go:build unix

package jobrunner

import (
	"os/exec"
	"syscall"
)

// killGroupOnCancel starts the job in its own process group and kills the
// whole group when the job context ends.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
