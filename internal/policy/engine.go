// Package policy 决定一次特权请求是否允许执行。
//
// 拒绝列表是对小写命令文本的子串匹配，宁可误拦也不放过；它只是一道粗粒度的
// 威慑，能被别名、编码或等价命令绕过，不是安全边界。
package policy

import (
	"regexp"
	"slices"
	"strings"

	"opsdash/internal/auth"
	"opsdash/internal/command"
)

// 拒绝原因，直接展示给操作者
const (
	ReasonInsufficientPrivilege = "insufficient privilege"
	ReasonBlockedForSecurity    = "blocked for security reasons"
	ReasonActionNotAllowed      = "action not allowed"
	ReasonInvalidService        = "invalid service name"
	ReasonEmptyCommand          = "empty command"
	ReasonAccountDisabled       = "account disabled"
	ReasonUnsupportedKind       = "unsupported request kind"
)

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9@._:-]+$`)

// Decision 策略判定结果
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow 允许
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny 拒绝并附带原因
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Engine 策略引擎。构造后只读，可被任意数量的请求并发使用。
type Engine struct {
	denylist []string
	actions  map[command.Action]struct{}
}

// NewEngine 创建策略引擎；denylist 会被复制并转为小写
func NewEngine(denylist []string, actions []command.Action) *Engine {
	e := &Engine{
		denylist: make([]string, 0, len(denylist)),
		actions:  make(map[command.Action]struct{}, len(actions)),
	}
	for _, fragment := range denylist {
		if fragment = strings.ToLower(fragment); fragment != "" {
			e.denylist = append(e.denylist, fragment)
		}
	}
	for _, a := range actions {
		e.actions[a] = struct{}{}
	}
	return e
}

// Denylist 返回拒绝列表副本
func (e *Engine) Denylist() []string {
	return slices.Clone(e.denylist)
}

// Evaluate 纯函数：不执行任何操作，只给出判定
func (e *Engine) Evaluate(identity *auth.Identity, target command.Target) Decision {
	if identity == nil {
		return Deny(ReasonInsufficientPrivilege)
	}
	if !identity.Active {
		return Deny(ReasonAccountDisabled)
	}

	switch target.Kind {
	case command.KindFreeformShell:
		return e.evaluateShell(identity, target.Command)
	case command.KindServiceAction:
		return e.evaluateService(identity, target.Service, target.Action)
	default:
		return Deny(ReasonUnsupportedKind)
	}
}

func (e *Engine) evaluateShell(identity *auth.Identity, text string) Decision {
	if !identity.IsAdmin() {
		return Deny(ReasonInsufficientPrivilege)
	}
	if strings.TrimSpace(text) == "" {
		return Deny(ReasonEmptyCommand)
	}
	if e.matchesDenylist(text) {
		return Deny(ReasonBlockedForSecurity)
	}
	return Allow()
}

func (e *Engine) evaluateService(identity *auth.Identity, service string, action command.Action) Decision {
	if _, ok := e.actions[action]; !ok {
		return Deny(ReasonActionNotAllowed)
	}
	if !ValidServiceName(service) {
		return Deny(ReasonInvalidService)
	}
	// status 只读，任何激活账号都可查询
	if action.IsMutating() && !identity.IsAdmin() {
		return Deny(ReasonInsufficientPrivilege)
	}
	return Allow()
}

func (e *Engine) matchesDenylist(text string) bool {
	lowered := strings.ToLower(text)
	for _, fragment := range e.denylist {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// ValidServiceName systemd 单元名：不能以 - 开头，避免被当作命令行选项
func ValidServiceName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "-") && serviceNamePattern.MatchString(name)
}
