// Package control 串联策略判定、命令执行与审计写入，是 Web 层调用特权操作的唯一入口。
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/command"
	"opsdash/internal/logger"
	"opsdash/internal/metrics"
	"opsdash/internal/policy"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrAuditUnavailable 审计写入失败。此时不返回执行结果，调用方必须按错误处理。
var ErrAuditUnavailable = errors.New("control: audit trail unavailable")

// Surface 自由命令的提交入口
type Surface string

const (
	// SurfaceQuick 仪表盘命令框
	SurfaceQuick Surface = "quick"
	// SurfaceTerminal 终端页面
	SurfaceTerminal Surface = "terminal"
)

// Recorder 审计写入接口
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) (*audit.Record, error)
}

// StatusStore 服务状态缓存接口
type StatusStore interface {
	Upsert(ctx context.Context, service string, status command.ServiceState, checkedAt time.Time) error
	SetAutoStart(ctx context.Context, service string, enabled bool, at time.Time) error
}

// Timeouts 各类操作的超时
type Timeouts struct {
	Shell  time.Duration
	Status time.Duration
	Action time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Shell <= 0 {
		t.Shell = 30 * time.Second
	}
	if t.Status <= 0 {
		t.Status = 10 * time.Second
	}
	if t.Action <= 0 {
		t.Action = 30 * time.Second
	}
	return t
}

// Request 一次特权请求，本身不持久化
type Request struct {
	Identity *auth.Identity
	Origin   audit.Origin
	Surface  Surface
	Target   command.Target
}

// Service 特权操作编排
type Service struct {
	policy   *policy.Engine
	runner   command.Runner
	recorder Recorder
	status   StatusStore
	timeouts Timeouts
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService 创建编排服务
func NewService(engine *policy.Engine, runner command.Runner, recorder Recorder, status StatusStore, timeouts Timeouts, zl *zap.Logger) *Service {
	return &Service{
		policy:   engine,
		runner:   runner,
		recorder: recorder,
		status:   status,
		timeouts: timeouts.withDefaults(),
		logger:   logger.OrNop(zl),
		tracer:   otel.Tracer("opsdash/internal/control"),
		now:      time.Now,
	}
}

// RunFreeformCommand 执行自由 shell 命令
func (s *Service) RunFreeformCommand(ctx context.Context, identity *auth.Identity, origin audit.Origin, surface Surface, text string) (*command.Result, error) {
	return s.Execute(ctx, Request{
		Identity: identity,
		Origin:   origin,
		Surface:  surface,
		Target:   command.ShellTarget(text),
	})
}

// ControlService 对 systemd 服务执行生命周期操作
func (s *Service) ControlService(ctx context.Context, identity *auth.Identity, origin audit.Origin, service string, action command.Action) (*command.Result, error) {
	return s.Execute(ctx, Request{
		Identity: identity,
		Origin:   origin,
		Target:   command.ServiceTarget(service, action),
	})
}

// Execute 判定、执行、审计。每次调用恰好写一条审计记录，被拒绝的请求也不例外；
// 只有审计写入失败会以 error 返回。
func (s *Service) Execute(ctx context.Context, req Request) (*command.Result, error) {
	ctx, span := s.tracer.Start(ctx, "control.Service.Execute")
	defer span.End()

	kind := string(req.Target.Kind)
	span.SetAttributes(
		attribute.String("kind", kind),
		attribute.String("service", req.Target.Service),
		attribute.String("action", string(req.Target.Action)),
	)

	// 请求方断开不能中断审计与缓存写入
	durable := context.WithoutCancel(ctx)

	decision := s.policy.Evaluate(req.Identity, req.Target)
	var res *command.Result
	if decision.Allowed {
		res = s.runner.Run(ctx, req.Target, s.timeoutFor(req.Target))
		if req.Target.Kind == command.KindServiceAction {
			s.refreshCache(durable, req.Target, res)
		}
	} else {
		res = command.Blocked(decision.Reason)
		metrics.PolicyDenialsTotal.WithLabelValues(kind).Inc()
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))

	_, err := s.recorder.Record(durable, audit.Entry{
		Category:    categoryFor(req),
		Description: describe(req, decision),
		Origin:      req.Origin,
		Actor:       req.Identity.AuditActor(),
		Metadata:    metadataFor(req, res),
	})
	metrics.RecordPrivilegedRequest(kind, string(res.Status), float64(res.DurationMs)/1000, decision.Allowed)

	zl := logger.Attach(ctx, s.logger).With(
		zap.String("user", handleOf(req.Identity)),
		zap.String("kind", kind),
		zap.String("status", string(res.Status)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		zl.Error("特权操作审计失败，结果不返回给调用方", zap.String("target", req.Target.Describe()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}

	if !decision.Allowed {
		zl.Warn("特权操作被拒绝", zap.String("reason", decision.Reason))
	}
	return res, nil
}

func (s *Service) timeoutFor(target command.Target) time.Duration {
	switch {
	case target.Kind == command.KindFreeformShell:
		return s.timeouts.Shell
	case target.Action == command.ActionStatus:
		return s.timeouts.Status
	default:
		return s.timeouts.Action
	}
}

// refreshCache 尽力刷新状态缓存，失败只记日志
func (s *Service) refreshCache(ctx context.Context, target command.Target, res *command.Result) {
	if s.status == nil {
		return
	}
	var err error
	switch {
	case target.Action == command.ActionStatus:
		state := res.ServiceState
		if state == "" {
			state = command.StateUnknown
		}
		metrics.ServiceProbesTotal.WithLabelValues(string(state)).Inc()
		err = s.status.Upsert(ctx, target.Service, state, s.now())
	case res.Status != command.StatusCompleted:
		return
	case target.Action == command.ActionEnable:
		err = s.status.SetAutoStart(ctx, target.Service, true, s.now())
	case target.Action == command.ActionDisable:
		err = s.status.SetAutoStart(ctx, target.Service, false, s.now())
	}
	if err != nil {
		logger.Attach(ctx, s.logger).Warn("服务状态缓存刷新失败",
			zap.String("service", target.Service),
			zap.Error(err),
		)
	}
}

func categoryFor(req Request) audit.Category {
	if req.Target.Kind == command.KindServiceAction {
		return audit.CategoryServiceControl
	}
	if req.Surface == SurfaceTerminal {
		return audit.CategoryTerminalCommand
	}
	return audit.CategoryCommandExecution
}

// describe 描述请求的意图而不是结果；被拒绝时附上原因
func describe(req Request, decision policy.Decision) string {
	user := handleOf(req.Identity)
	var text string
	switch {
	case req.Target.Kind == command.KindServiceAction:
		text = fmt.Sprintf("User %s executed %s on service %s", user, req.Target.Action, req.Target.Service)
	case req.Surface == SurfaceTerminal:
		text = fmt.Sprintf("User %s executed terminal command: %s", user, req.Target.Command)
	default:
		text = fmt.Sprintf("User %s executed command: %s", user, req.Target.Command)
	}
	if !decision.Allowed {
		text += fmt.Sprintf(" (blocked: %s)", decision.Reason)
	}
	return text
}

func metadataFor(req Request, res *command.Result) map[string]any {
	meta := map[string]any{
		"kind":    string(req.Target.Kind),
		"outcome": string(res.Status),
	}
	if req.Target.Kind == command.KindServiceAction {
		meta["service"] = req.Target.Service
		meta["action"] = string(req.Target.Action)
	} else {
		meta["surface"] = string(surfaceOf(req))
	}
	return meta
}

func surfaceOf(req Request) Surface {
	if req.Surface == "" {
		return SurfaceQuick
	}
	return req.Surface
}

func handleOf(identity *auth.Identity) string {
	if identity == nil {
		return "anonymous"
	}
	return identity.Handle
}
