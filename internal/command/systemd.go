package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// runServiceAction 执行会改变服务状态的操作（sudo -n systemctl <action> <unit>）
func (e *Executor) runServiceAction(ctx context.Context, service string, action Action, timeout time.Duration) *Result {
	name, args := e.systemctlArgv(true, string(action), service)
	out := newCappedBuffer(captureLimit(e.opts.OutputCap))
	run := e.start(ctx, timeout, name, args, out, out)

	err := run.wait()
	if run.timedOut() {
		return timedOut(timeout, "")
	}

	if err == nil {
		return &Result{
			Status:  StatusCompleted,
			Message: fmt.Sprintf("Service %s %s successfully", service, action.pastTense()),
			Output:  fmt.Sprintf("Service %s %s successfully", service, action.pastTense()),
		}
	}

	text, truncated := Truncate(out.String(), e.opts.OutputCap)
	res := &Result{
		Status:    StatusFailed,
		Message:   fmt.Sprintf("Failed to %s service %s", action, service),
		Output:    text,
		Truncated: truncated,
		ExitCode:  -1,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.Error = err.Error()
	}
	return res
}

// probeStatus 只读探测：先 is-active，再用 status 报告判断非活动的具体原因。
// 两次调用共享同一个超时预算。
func (e *Executor) probeStatus(ctx context.Context, service string, timeout time.Duration) *Result {
	deadline := time.Now().Add(timeout)

	name, args := e.systemctlArgv(false, "is-active", service)
	activeOut := newCappedBuffer(256)
	run := e.start(ctx, timeout, name, args, activeOut, activeOut)
	activeErr := run.wait()
	if run.timedOut() {
		return timedOut(timeout, StateTimeout)
	}
	var exitErr *exec.ExitError
	if activeErr != nil && !errors.As(activeErr, &exitErr) {
		return &Result{
			Status:       StatusFailed,
			Message:      fmt.Sprintf("Unable to query service %s", service),
			Error:        activeErr.Error(),
			ExitCode:     -1,
			ServiceState: StateUnknown,
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return timedOut(timeout, StateTimeout)
	}

	limit := captureLimit(e.opts.OutputCap)
	stdout, stderr := newCappedBuffer(limit), newCappedBuffer(limit)
	name, args = e.systemctlArgv(false, "status", service)
	run = e.start(ctx, remaining, name, args, stdout, stderr)
	statusErr := run.wait()
	if run.timedOut() {
		return timedOut(timeout, StateTimeout)
	}

	state := StateActive
	if activeErr != nil {
		state = ClassifyStatus(stdout.String(), stderr.String())
	}

	res := &Result{
		Status:       StatusCompleted,
		Message:      fmt.Sprintf("Service %s is %s", service, state),
		ServiceState: state,
	}
	if errors.As(statusErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Output, res.Truncated = Truncate(joinReport(stdout.String(), stderr.String()), e.opts.OutputCap)
	return res
}

// ClassifyStatus 根据 `systemctl status` 的文本输出推断状态。
// 输出格式随 systemd 版本变化，只做子串匹配；无法识别时返回 unknown。
func ClassifyStatus(stdout, stderr string) ServiceState {
	stdout = strings.ToLower(stdout)
	stderr = strings.ToLower(stderr)
	switch {
	case strings.Contains(stderr, "could not be found"):
		return StateNotFound
	case strings.Contains(stdout, "inactive"):
		return StateInactive
	case strings.Contains(stdout, "failed"):
		return StateFailed
	default:
		return StateUnknown
	}
}

func (e *Executor) systemctlArgv(privileged bool, verb, service string) (string, []string) {
	if privileged && e.opts.UseSudo {
		return e.opts.SudoPath, []string{"-n", e.opts.SystemctlPath, verb, service}
	}
	return e.opts.SystemctlPath, []string{verb, service}
}

func joinReport(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
