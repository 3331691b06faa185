// Package metrics 提供基于Prometheus的指标收集框架
//
// # 核心概念
//
// **1. Counter（计数器）**：只增不减的累计值
//   - 示例：代理请求总数、Saga执行总数
//
// **2. Gauge（仪表盘）**：可增可减的瞬时值
//   - 示例：熔断器状态、正在处理的请求数
//
// **3. Histogram（直方图）**：观测值的分布
//   - 示例：代理请求耗时、Saga步骤耗时（自动计算P50/P90/P99）
//
// # 指标命名约定（对外契约，勿改名）
//
// 网关核心指标：
//   - gateway_proxy_requests_total{service,method,status}
//   - gateway_proxy_request_duration_seconds{service,method}
//   - gateway_proxy_retries_total{service}
//   - gateway_circuit_breaker_state{service}（CLOSED=0, HALF_OPEN=1, OPEN=2）
//   - saga_executions_total{outcome}
//   - saga_step_duration_seconds{step,outcome}
//   - saga_compensations_total{step,outcome}
//
// # 标签基数纪律
//
// - ✅ service、method、status、step、outcome：有限枚举值
// - ❌ correlation_id、user_id、path参数：无界基数，只进日志不进标签
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
)

var (
	// initialized 标记是否已初始化（防止重复注册panic）
	initialized bool

	// 网关代理指标

	// ProxyRequestsTotal 代理请求总数
	// 标签：service（下游服务名）、method、status（success/circuit_open/upstream_error/error）
	ProxyRequestsTotal *prometheus.CounterVec

	// ProxyRequestDuration 代理请求耗时（整体，含重试）
	ProxyRequestDuration *prometheus.HistogramVec

	// ProxyRetriesTotal 代理重试总数（每次重试尝试计一次）
	ProxyRetriesTotal *prometheus.CounterVec

	// CircuitBreakerState 熔断器状态（CLOSED=0, HALF_OPEN=1, OPEN=2）
	CircuitBreakerState *prometheus.GaugeVec

	// HTTP入口指标

	// HTTPRequestsTotal HTTP请求总数
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress 正在处理的HTTP请求数
	HTTPRequestsInProgress prometheus.Gauge

	// RateLimitedTotal 被限流拒绝的请求总数
	RateLimitedTotal prometheus.Counter

	// Saga指标

	// SagaExecutionsTotal Saga执行总数
	// 标签：outcome（success/failure）
	SagaExecutionsTotal *prometheus.CounterVec

	// SagaStepDuration Saga步骤耗时
	// 标签：step（步骤名）、outcome（success/failure）
	SagaStepDuration *prometheus.HistogramVec

	// SagaCompensationsTotal Saga补偿执行总数
	// 标签：step、outcome（success/failure）
	SagaCompensationsTotal *prometheus.CounterVec

	// 消息队列指标（对账队列）

	// MessagesPublishedTotal 消息发布总数
	MessagesPublishedTotal *prometheus.CounterVec
)

// InitMetrics 初始化所有Prometheus指标
//
// 必须在程序启动时调用一次，注册所有指标到默认Registry，
// /metrics端点由promhttp.Handler()暴露。
func InitMetrics() {
	if initialized {
		return
	}
	initialized = true

	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "代理请求总数",
		},
		[]string{"service", "method", "status"},
	)

	ProxyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_request_duration_seconds",
			Help:    "代理请求耗时（秒，含重试）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"service", "method"},
	)

	ProxyRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_retries_total",
			Help: "代理重试总数",
		},
		[]string{"service"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "熔断器状态（CLOSED=0, HALF_OPEN=1, OPEN=2）",
		},
		[]string{"service"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "被限流拒绝的请求总数",
		},
	)

	SagaExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "Saga执行总数",
		},
		[]string{"outcome"},
	)

	SagaStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Saga步骤耗时（秒）",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"step", "outcome"},
	)

	SagaCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Saga补偿执行总数",
		},
		[]string{"step", "outcome"},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "消息发布总数",
		},
		[]string{"exchange", "routing_key"},
	)
}

// =========================================
// 适配器（窄接口注入，避免循环依赖）
// =========================================

// SagaObserver saga.Observer的Prometheus实现
type SagaObserver struct{}

// SagaFinished 上报Saga整体结果
func (SagaObserver) SagaFinished(outcome string, d time.Duration) {
	SagaExecutionsTotal.WithLabelValues(outcome).Inc()
}

// StepFinished 上报单步结果
func (SagaObserver) StepFinished(step, outcome string, d time.Duration) {
	SagaStepDuration.WithLabelValues(step, outcome).Observe(d.Seconds())
}

// CompensationFinished 上报补偿结果
func (SagaObserver) CompensationFinished(step, outcome string) {
	SagaCompensationsTotal.WithLabelValues(step, outcome).Inc()
}

// BreakerStateChanged 熔断器状态变化回调
// 注入circuitbreaker.Registry，状态变化时更新gauge
func BreakerStateChanged(name string, from, to circuitbreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(to.GaugeValue())
}
