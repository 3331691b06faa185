// Package circuitbreaker 实现熔断器模式（Circuit Breaker Pattern）
//
// 熔断器核心思想：
// 1. 以滑动窗口统计对某个下游服务调用的成功/失败
// 2. 窗口内失败数达到阈值时，快速失败（打开熔断器）
// 3. 过open_timeout后允许探测请求（半开状态），连续成功则恢复
//
// 为什么需要熔断器？
// - 防止雪崩效应：下游故障导致网关goroutine堆积、连接池耗尽
// - 快速失败：下游故障时立即返回503，不等待超时
// - 自动恢复：下游恢复后，探测成功自动关闭熔断器
//
// 与旧版（按连续失败计数）的区别：
// - 滑动窗口统计，避免很久之前的一次故障突发导致误熔断
// - Open→HalfOpen为惰性转换（下一次调用时判断），无需每个熔断器一个定时器
// - HalfOpen任何一次失败立即回到Open，防止恢复期流量冲垮下游
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常）
	// - 所有请求正常通过
	// - 滑动窗口内失败数达到FailureThreshold时转为OPEN
	StateClosed State = iota

	// StateOpen 打开状态（熔断）
	// - 所有请求快速失败，不调用下游
	// - 距上次失败超过OpenTimeout后，下一次调用转为HALF_OPEN（惰性）
	StateOpen

	// StateHalfOpen 半开状态（探测）
	// - 允许有限请求通过（探测下游是否恢复）
	// - 连续成功SuccessThreshold次转为CLOSED
	// - 任何一次失败立即转回OPEN
	StateHalfOpen
)

// String 状态转字符串（便于日志）
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// GaugeValue 状态的指标编码（CLOSED=0, HALF_OPEN=1, OPEN=2）
func (s State) GaugeValue() float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}

// ErrOpenState 熔断器打开错误
// 调用方据此区分"下游真的失败"和"熔断器快速失败"：
// 前者计入重试，后者立即映射为503且不再重试。
var ErrOpenState = errors.New("circuit breaker is open")

// Config 熔断器配置（进程启动时确定，不支持热更新）
type Config struct {
	// FailureThreshold 窗口内失败数达到该值时熔断
	FailureThreshold int

	// SuccessThreshold 半开状态下连续成功该次数后恢复为CLOSED
	// 同时也是半开状态允许的最大并发探测数
	SuccessThreshold int

	// WindowSize 滑动窗口大小（最近N次调用结果）
	WindowSize int

	// OpenTimeout 熔断持续时间，超过后允许探测
	OpenTimeout time.Duration
}

// DefaultConfig 默认配置（与网关各下游一致的保守值）
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		WindowSize:       100,
		OpenTimeout:      60 * time.Second,
	}
}

// Snapshot 熔断器状态快照（诊断接口使用）
type Snapshot struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	FailureCount   int       `json:"failure_count"`
	SuccessCount   int       `json:"success_count"`
	RecentFailures int       `json:"recent_failures"`
	TotalCalls     int       `json:"total_calls"`
	LastFailureAt  time.Time `json:"last_failure_at,omitempty"`
}

// CircuitBreaker 熔断器
//
// 并发约定：
// 1. 状态变更（记录结果、惰性Open→HalfOpen）由mu串行化
// 2. 实际调用f()时不持有锁——阻塞的下游调用不能阻塞其他请求
// 3. "检查状态→调用→记录结果"整体不是事务：一次调用可能在HalfOpen
//    开始、在状态已回到Open后结束，结果照常记录，这是允许的
type CircuitBreaker struct {
	name string
	cfg  Config

	mu               sync.Mutex
	state            State
	failureCount     int       // 当前状态周期内的失败数
	successCount     int       // 当前状态周期内的成功数（HalfOpen恢复判据）
	lastFailureAt    time.Time // Open纪元内单调递增
	window           []bool    // 最近WindowSize次调用结果的环形缓冲
	windowPos        int
	windowLen        int
	halfOpenInFlight int // 半开状态在途探测数

	onStateChange func(name string, from, to State) // 状态变化回调
}

// New 创建熔断器
//
// 示例：
//
//	cb := circuitbreaker.New("fraud-service", circuitbreaker.Config{
//	    FailureThreshold: 5,
//	    SuccessThreshold: 2,
//	    WindowSize:       100,
//	    OpenTimeout:      60 * time.Second,
//	})
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}

	return &CircuitBreaker{
		name:          name,
		cfg:           cfg,
		state:         StateClosed,
		window:        make([]bool, cfg.WindowSize),
		onStateChange: func(name string, from, to State) {},
	}
}

// Name 熔断器名称（即下游服务名）
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// SetStateChangeCallback 设置状态变化回调
//
// 用途：
// - 记录日志
// - 更新监控指标（gateway_circuit_breaker_state）
//
// 注意：回调在持锁状态下执行，必须轻量、不可重入本熔断器。
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Call 执行请求（核心方法）
//
// 执行流程：
// 1. beforeCall：检查状态，Open且未到探测时间则返回ErrOpenState
// 2. 不持锁执行f()
// 3. afterCall：记录结果，驱动状态机
//
// 返回：
//
//	f()的错误 或 ErrOpenState
func (cb *CircuitBreaker) Call(f func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	// 不持锁执行实际调用（可能阻塞在网络I/O上）
	err := f()

	cb.afterCall(err == nil)
	return err
}

// beforeCall 请求前检查（含惰性Open→HalfOpen转换）
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		// 惰性转换：距上次失败超过OpenTimeout，下一次调用进入半开探测
		if time.Since(cb.lastFailureAt) >= cb.cfg.OpenTimeout {
			cb.setState(StateHalfOpen)
		} else {
			return ErrOpenState
		}
	case StateHalfOpen:
		// 限制在途探测数，防止恢复期流量洪峰
		if cb.halfOpenInFlight >= cb.cfg.SuccessThreshold {
			return ErrOpenState
		}
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight++
	}
	return nil
}

// afterCall 请求后记录结果
func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

// recordSuccess 记录成功（调用方需持锁）
func (cb *CircuitBreaker) recordSuccess() {
	cb.pushOutcome(true)
	cb.successCount++

	if cb.state == StateHalfOpen && cb.successCount >= cb.cfg.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

// recordFailure 记录失败（调用方需持锁）
func (cb *CircuitBreaker) recordFailure() {
	cb.pushOutcome(false)
	cb.failureCount++
	cb.lastFailureAt = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.recentFailures() >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
			// setState重置lastFailureAt为零值，Open纪元从本次失败开始计时
			cb.lastFailureAt = time.Now()
		}
	case StateHalfOpen:
		// 探测失败，立即回到Open并重新计时
		cb.setState(StateOpen)
		cb.lastFailureAt = time.Now()
	}
}

// pushOutcome 追加一次调用结果到环形窗口
func (cb *CircuitBreaker) pushOutcome(success bool) {
	cb.window[cb.windowPos] = success
	cb.windowPos = (cb.windowPos + 1) % cb.cfg.WindowSize
	if cb.windowLen < cb.cfg.WindowSize {
		cb.windowLen++
	}
}

// recentFailures 窗口内失败数
func (cb *CircuitBreaker) recentFailures() int {
	n := 0
	for i := 0; i < cb.windowLen; i++ {
		if !cb.window[i] {
			n++
		}
	}
	return n
}

// setState 状态转换（调用方需持锁）
// 不变式：任何状态变化都清零计数器和窗口
func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.failureCount = 0
	cb.successCount = 0
	cb.windowPos = 0
	cb.windowLen = 0
	cb.halfOpenInFlight = 0
	cb.lastFailureAt = time.Time{}

	cb.onStateChange(cb.name, prev, state)
}

// State 获取当前状态（只读，含惰性转换判断）
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureAt) >= cb.cfg.OpenTimeout {
		// 只读查询不触发转换（转换只发生在调用点），但对外展示HALF_OPEN
		// 语义更准确：此刻到达的请求将被放行探测
		return StateHalfOpen
	}
	return cb.state
}

// Snapshot 获取状态快照（诊断接口）
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		Name:           cb.name,
		State:          cb.state.String(),
		FailureCount:   cb.failureCount,
		SuccessCount:   cb.successCount,
		RecentFailures: cb.recentFailures(),
		TotalCalls:     cb.windowLen,
		LastFailureAt:  cb.lastFailureAt,
	}
}

// Reset 手动重置为CLOSED（运维接口，慎用）
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
