//go:build !unix

package command

import "os/exec"

// configureProcessGroup 非 unix 平台退化为只结束直接子进程
func configureProcessGroup(cmd *exec.Cmd) {}
