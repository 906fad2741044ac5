package servicestatus

import (
	"context"
	"time"

	"opsdash/internal/command"
	"opsdash/internal/logger"
	"opsdash/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Poller 系统发起的周期性状态刷新，不经过策略与审计
type Poller struct {
	runner      command.Runner
	store       *Store
	services    []string
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
	group       singleflight.Group
}

// PollerOptions 轮询配置
type PollerOptions struct {
	Services    []string
	Interval    time.Duration
	Timeout     time.Duration // 单次探测超时
	Concurrency int
}

// NewPoller 创建轮询器
func NewPoller(runner command.Runner, store *Store, opts PollerOptions, zl *zap.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Poller{
		runner:      runner,
		store:       store,
		services:    append([]string(nil), opts.Services...),
		interval:    opts.Interval,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      logger.OrNop(zl),
	}
}

// Run 立即刷新一次，之后按间隔刷新，直到 ctx 取消
func (p *Poller) Run(ctx context.Context) {
	if len(p.services) == 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("服务状态轮询失败", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RefreshAll 以有限并发刷新所有关注的服务，返回第一个存储错误
func (p *Poller) RefreshAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, name := range p.services {
		g.Go(func() error {
			_, err := p.Refresh(gctx, name)
			return err
		})
	}
	return g.Wait()
}

// Refresh 探测单个服务并写入缓存。同一服务的并发调用合并为一次探测。
func (p *Poller) Refresh(ctx context.Context, service string) (command.ServiceState, error) {
	v, err, _ := p.group.Do(service, func() (any, error) {
		res := p.runner.Run(ctx, command.ServiceTarget(service, command.ActionStatus), p.timeout)
		state := res.ServiceState
		if state == "" {
			state = command.StateUnknown
		}
		metrics.ServiceProbesTotal.WithLabelValues(string(state)).Inc()
		if err := p.store.Upsert(ctx, service, state, time.Now()); err != nil {
			return state, err
		}
		return state, nil
	})
	state, _ := v.(command.ServiceState)
	return state, err
}
