package command

import (
	"fmt"
	"time"
)

// Kind 特权请求的目标类型
type Kind string

const (
	// KindFreeformShell 任意 shell 命令
	KindFreeformShell Kind = "freeform_shell"
	// KindServiceAction systemd 服务生命周期操作
	KindServiceAction Kind = "service_action"
)

// Action 服务生命周期操作
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionReload  Action = "reload"
	ActionStatus  Action = "status"
)

// AllActions 允许的服务操作集合（只读）
var AllActions = []Action{ActionStart, ActionStop, ActionRestart, ActionEnable, ActionDisable, ActionReload, ActionStatus}

// IsMutating status 以外的操作都会改变服务状态，需要提权执行
func (a Action) IsMutating() bool {
	return a != ActionStatus
}

// pastTense 用于成功提示
func (a Action) pastTense() string {
	switch a {
	case ActionStart:
		return "started"
	case ActionStop:
		return "stopped"
	case ActionRestart:
		return "restarted"
	case ActionEnable:
		return "enabled"
	case ActionDisable:
		return "disabled"
	case ActionReload:
		return "reloaded"
	default:
		return string(a) + " completed"
	}
}

// Target 执行目标：shell 命令文本，或（服务名，操作）
type Target struct {
	Kind    Kind   `json:"kind"`
	Command string `json:"command,omitempty"`
	Service string `json:"service,omitempty"`
	Action  Action `json:"action,omitempty"`
}

// ShellTarget 构造 shell 命令目标
func ShellTarget(command string) Target {
	return Target{Kind: KindFreeformShell, Command: command}
}

// ServiceTarget 构造服务操作目标
func ServiceTarget(service string, action Action) Target {
	return Target{Kind: KindServiceAction, Service: service, Action: action}
}

// Describe 返回目标的可读描述，用于日志
func (t Target) Describe() string {
	if t.Kind == KindServiceAction {
		return fmt.Sprintf("%s %s", t.Action, t.Service)
	}
	return t.Command
}

// Status 执行结果状态
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// ServiceState systemd 服务的观测状态
type ServiceState string

const (
	StateActive   ServiceState = "active"
	StateInactive ServiceState = "inactive"
	StateFailed   ServiceState = "failed"
	StateNotFound ServiceState = "not-found"
	StateUnknown  ServiceState = "unknown"
	StateTimeout  ServiceState = "timeout"
)

// Result 一次执行的结果，按 Status 区分含义：
//   - Completed/Failed: Output 为截断后的进程输出，ExitCode 有效
//   - TimedOut: Output 为固定提示文本
//   - Blocked: Reason 为拒绝原因，从未执行
//
// ServiceState 仅在 status 探测时填充。
type Result struct {
	Status       Status       `json:"status"`
	Message      string       `json:"message"`
	Output       string       `json:"output"`
	Truncated    bool         `json:"truncated,omitempty"`
	ExitCode     int          `json:"exit_code"`
	Reason       string       `json:"reason,omitempty"`
	Error        string       `json:"error,omitempty"`
	ServiceState ServiceState `json:"service_state,omitempty"`
	DurationMs   int64        `json:"duration_ms"`
}

// Blocked 构造策略拒绝的结果
func Blocked(reason string) *Result {
	return &Result{
		Status:  StatusBlocked,
		Message: "Command blocked: " + reason,
		Output:  "ERROR: " + reason,
		Reason:  reason,
	}
}

func timedOut(timeout time.Duration, state ServiceState) *Result {
	return &Result{
		Status:       StatusTimedOut,
		Message:      "Command timed out",
		Output:       fmt.Sprintf("Command timed out after %s", formatTimeout(timeout)),
		ExitCode:     -1,
		ServiceState: state,
	}
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int64(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
