//go:build unix

package command

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup 让子进程成为新进程组的组长，超时时整组 SIGKILL，
// 避免 `sh -c` 派生的后台进程成为孤儿
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
