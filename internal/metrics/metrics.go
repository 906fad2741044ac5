package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 特权操作指标
var (
	// PrivilegedRequestsTotal 特权请求总数（按目标类型与结果状态）
	PrivilegedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_privileged_requests_total",
			Help: "特权请求总数",
		},
		[]string{"kind", "status"},
	)

	// PrivilegedExecutionDuration 进程执行耗时（秒），超时上限 30s
	PrivilegedExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_privileged_execution_seconds",
			Help:    "特权命令执行耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"kind"},
	)

	// PolicyDenialsTotal 策略拒绝次数
	PolicyDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_policy_denials_total",
			Help: "策略拒绝次数",
		},
		[]string{"kind"},
	)

	// AuditWriteFailuresTotal 审计写入失败次数，任何非零值都需要告警
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsdash_audit_write_failures_total",
			Help: "审计日志写入失败次数",
		},
	)

	// ServiceProbesTotal 服务状态探测次数（按观测状态）
	ServiceProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_service_probes_total",
			Help: "服务状态探测次数",
		},
		[]string{"status"},
	)
)

// RecordPrivilegedRequest 记录一次特权请求
func RecordPrivilegedRequest(kind, status string, seconds float64, executed bool) {
	PrivilegedRequestsTotal.WithLabelValues(kind, status).Inc()
	if executed {
		PrivilegedExecutionDuration.WithLabelValues(kind).Observe(seconds)
	}
}
