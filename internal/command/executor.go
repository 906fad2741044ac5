package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"opsdash/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Runner 执行器接口：永远返回结果，不向调用方返回错误
type Runner interface {
	Run(ctx context.Context, target Target, timeout time.Duration) *Result
}

// Options 执行器配置
type Options struct {
	Shell         string
	WorkingDir    string // 为空时使用当前账号的 home 目录
	OutputCap     int    // 返回字符上限
	UseSudo       bool
	SudoPath      string
	SystemctlPath string
	// WaitDelay 进程组被杀死后等待输出管道关闭的最长时间
	WaitDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Shell == "" {
		o.Shell = "/bin/sh"
	}
	if o.OutputCap <= 0 {
		o.OutputCap = 500
	}
	if o.SudoPath == "" {
		o.SudoPath = "sudo"
	}
	if o.SystemctlPath == "" {
		o.SystemctlPath = "systemctl"
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = 2 * time.Second
	}
	if o.WorkingDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			o.WorkingDir = home
		}
	}
	return o
}

// Executor 通过 shell 与 systemctl 执行特权操作
type Executor struct {
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

// NewExecutor 创建执行器
func NewExecutor(opts Options, zl *zap.Logger) *Executor {
	return &Executor{
		opts:   opts.withDefaults(),
		logger: logger.OrNop(zl),
		tracer: otel.Tracer("opsdash/internal/command"),
	}
}

// OutputCap 返回输出截断上限
func (e *Executor) OutputCap() int {
	return e.opts.OutputCap
}

// WorkingDir 返回 shell 命令的工作目录
func (e *Executor) WorkingDir() string {
	return e.opts.WorkingDir
}

// Run 执行目标。调用方的取消不会中断已派发的进程，只有 timeout 能终止它。
func (e *Executor) Run(ctx context.Context, target Target, timeout time.Duration) *Result {
	ctx, span := e.tracer.Start(ctx, "command.Executor.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", string(target.Kind)),
		attribute.String("service", target.Service),
		attribute.String("action", string(target.Action)),
	)

	start := time.Now()
	var res *Result
	switch target.Kind {
	case KindFreeformShell:
		res = e.runShell(ctx, target.Command, timeout)
	case KindServiceAction:
		if target.Action == ActionStatus {
			res = e.probeStatus(ctx, target.Service, timeout)
		} else {
			res = e.runServiceAction(ctx, target.Service, target.Action, timeout)
		}
	default:
		res = &Result{
			Status:   StatusFailed,
			Message:  "Error executing command",
			Error:    fmt.Sprintf("unsupported target kind %q", target.Kind),
			ExitCode: -1,
		}
	}
	res.DurationMs = time.Since(start).Milliseconds()
	span.SetAttributes(attribute.String("status", string(res.Status)))

	logger.Attach(ctx, e.logger).Info("执行特权命令",
		zap.String("kind", string(target.Kind)),
		zap.String("target", truncateLog(target.Describe(), 100)),
		zap.String("status", string(res.Status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res
}

// runShell 通过 shell 执行命令文本，合并 stdout/stderr
func (e *Executor) runShell(ctx context.Context, command string, timeout time.Duration) *Result {
	out := newCappedBuffer(captureLimit(e.opts.OutputCap))
	run := e.start(ctx, timeout, e.opts.Shell, []string{"-c", command}, out, out)
	run.cmd.Dir = e.opts.WorkingDir

	err := run.wait()
	if run.timedOut() {
		return timedOut(timeout, "")
	}

	text, truncated := Truncate(out.String(), e.opts.OutputCap)
	res := &Result{Output: text, Truncated: truncated}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Status = StatusCompleted
		res.Message = "Command executed successfully"
	case errors.As(err, &exitErr):
		res.Status = StatusFailed
		res.Message = "Command execution failed"
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Status = StatusFailed
		res.Message = "Error executing command"
		res.Error = err.Error()
		res.ExitCode = -1
	}
	return res
}

// invocation 一次受超时约束的子进程调用
type invocation struct {
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
}

// start 构造命令；超时上下文脱离调用方的取消信号
func (e *Executor) start(parent context.Context, timeout time.Duration, name string, args []string, stdout, stderr *cappedBuffer) *invocation {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8", "SYSTEMD_PAGER=", "SYSTEMD_COLORS=0")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.opts.WaitDelay
	configureProcessGroup(cmd)
	return &invocation{cmd: cmd, ctx: ctx, cancel: cancel}
}

func (i *invocation) wait() error {
	defer i.cancel()
	return i.cmd.Run()
}

func (i *invocation) timedOut() bool {
	return errors.Is(i.ctx.Err(), context.DeadlineExceeded)
}

// truncateLog 截断日志中的命令文本
func truncateLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
