// Package saga 实现通用的Saga分布式事务框架
//
// Saga模式核心思想：
// 1. 将跨资源的长事务拆分为多个有序步骤（本地事务或远程调用）
// 2. 每个步骤有对应的补偿操作
// 3. 某步失败时，按逆序执行已完成步骤的补偿操作（尽最大努力）
//
// 与两阶段提交（2PC）的取舍：
// - Saga保证最终一致性而非强一致性，换来高可用和无全局锁
// - 补偿期间数据可能处于中间状态，业务需容忍
// - 补偿操作必须幂等（网络故障可能导致重试）
//
// 步骤重试与网关重试的关系：
// - 步骤重试是"业务操作粒度"（整个扣库存操作重试一次）
// - 网关重试是"HTTP尝试粒度"（一次远程调用内部重试若干次）
// - 两层各自独立计数，互不可见
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// Status Saga状态
type Status string

const (
	StatusPending      Status = "pending"      // 已创建未执行
	StatusRunning      Status = "running"      // 正向执行中
	StatusCompensating Status = "compensating" // 补偿执行中
	StatusCompleted    Status = "completed"    // 全部步骤成功（终态）
	StatusFailed       Status = "failed"       // 某步失败，补偿已尽力执行（终态）
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step 表示Saga中的一个步骤（不可变定义）
//
// 设计要点：
// 1. Action是正向操作，返回值存入Context供后续步骤读取
// 2. Compensate是补偿操作，可为nil（如只读的风控评分无需补偿）
// 3. 只有Idempotent=true的步骤才允许重试——非幂等步骤重试可能
//    产生重复副作用（如重复建单），失败即失败
type Step struct {
	Name       string
	Action     func(ctx context.Context, sc *Context) (interface{}, error)
	Compensate func(ctx context.Context, sc *Context) error
	Timeout    time.Duration // 单步超时
	MaxRetries int           // 步骤级重试次数（仅幂等步骤生效）
	Idempotent bool
}

// StepResult 单步执行结果（诊断/状态查询用）
type StepResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Retries  int           `json:"retries"`
}

// Context 单次Saga执行的可变上下文
//
// 约定：
// 1. Data是初始数据（只读约定，步骤不应修改）
// 2. results按步骤名存储各步骤Action的返回值
// 3. 一个Context只属于一次Saga执行，不跨执行共享
type Context struct {
	SagaID string
	Data   map[string]interface{}

	mu      sync.RWMutex
	results map[string]interface{}
}

// NewContext 创建Saga上下文
func NewContext(sagaID string, initial map[string]interface{}) *Context {
	if initial == nil {
		initial = make(map[string]interface{})
	}
	return &Context{
		SagaID:  sagaID,
		Data:    initial,
		results: make(map[string]interface{}),
	}
}

// Result 读取某步骤的执行结果
// 用法：支付步骤读取建单步骤产出的order_id
func (c *Context) Result(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.results[name]
	return v, ok
}

// setResult 记录步骤结果（仅引擎调用）
func (c *Context) setResult(name string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = v
}

// Observer 指标观察接口
// 设计说明：引擎不直接依赖pkg/metrics，通过窄接口注入，
// 避免 指标 ↔ 引擎 的循环依赖（构造期单向注入）。
type Observer interface {
	SagaFinished(outcome string, d time.Duration)
	StepFinished(step, outcome string, d time.Duration)
	CompensationFinished(step, outcome string)
}

// nopObserver 空实现（未注入观察者时使用）
type nopObserver struct{}

func (nopObserver) SagaFinished(string, time.Duration)        {}
func (nopObserver) StepFinished(string, string, time.Duration) {}
func (nopObserver) CompensationFinished(string, string)        {}

// Saga 一次Saga事务执行实例
type Saga struct {
	id    string
	steps []Step

	log      *zap.Logger
	observer Observer

	// OnCompensationFailure 补偿失败回调（写入对账队列等）
	// 补偿失败不会中断后续补偿，也不会改变对外结果
	onCompensationFailure func(ctx context.Context, sagaID, step string, cause error)

	mu          sync.RWMutex
	status      Status
	completed   []string // 已完成步骤名（按完成顺序）
	stepResults []StepResult
	failedStep  string
	startedAt   time.Time
	endedAt     time.Time
}

// Option Saga可选配置
type Option func(*Saga)

// WithObserver 注入指标观察者（nil忽略，保持空实现）
func WithObserver(o Observer) Option {
	return func(s *Saga) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithCompensationFailureHandler 注入补偿失败处理（对账队列）
func WithCompensationFailureHandler(fn func(ctx context.Context, sagaID, step string, cause error)) Option {
	return func(s *Saga) { s.onCompensationFailure = fn }
}

// New 创建Saga
//
// 示例：
//
//	s := saga.New(log,
//	    saga.Step{Name: "reserve_inventory", Action: reserve, Compensate: release,
//	        Timeout: 15 * time.Second, MaxRetries: 2, Idempotent: true},
//	)
func New(log *zap.Logger, steps []Step, opts ...Option) *Saga {
	s := &Saga{
		id:       uuid.NewString(),
		steps:    steps,
		log:      log,
		observer: nopObserver{},
		onCompensationFailure: func(ctx context.Context, sagaID, step string, cause error) {},
		status:   StatusPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID Saga唯一标识
func (s *Saga) ID() string {
	return s.id
}

// Execute 执行Saga事务
//
// 执行流程：
// 1. 按顺序执行每个步骤的Action（带单步超时和幂等重试）
// 2. 某步失败时进入Compensating，逆序补偿已完成步骤
// 3. 返回失败步骤的错误（全部成功返回nil）
//
// 取消语义：
// - 执行使用与调用方取消解耦的context（context.WithoutCancel）：
//   客户端断连后Saga照常跑完（成功或补偿完毕），这是业务要求——
//   已扣款的订单不能因为用户关了浏览器而停在中间状态
// - 单步超时仍然生效；WithoutCancel同时去掉了入站deadline，
//   步骤（含其中的出站调用）只受单步超时约束
func (s *Saga) Execute(ctx context.Context, sc *Context) error {
	// 与调用方取消解耦，但保留context中的correlation_id等值
	execCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	log := s.log.With(zap.String("saga_id", s.id))
	log.Info("saga started", zap.Int("steps", len(s.steps)))

	for _, step := range s.steps {
		result, stepErr := s.executeStep(execCtx, step, sc)
		s.mu.Lock()
		s.stepResults = append(s.stepResults, result)
		s.mu.Unlock()

		if result.Success {
			s.mu.Lock()
			s.completed = append(s.completed, step.Name)
			s.mu.Unlock()
			log.Info("saga step completed", zap.String("step", step.Name),
				zap.Duration("duration", result.Duration))
			continue
		}

		// 步骤失败：补偿并进入终态
		log.Error("saga step failed", zap.String("step", step.Name),
			zap.String("error", result.Error), zap.Int("retries", result.Retries))

		s.mu.Lock()
		s.failedStep = step.Name
		s.status = StatusCompensating
		s.mu.Unlock()

		s.compensate(execCtx, sc)

		s.finish(StatusFailed, log)
		// %w保留步骤的原始错误类型，接口层据此映射HTTP状态码
		return fmt.Errorf("saga failed at step %q: %w", step.Name, stepErr)
	}

	s.finish(StatusCompleted, log)
	return nil
}

// executeStep 执行单个步骤（带超时与幂等重试）
func (s *Saga) executeStep(ctx context.Context, step Step, sc *Context) (StepResult, error) {
	start := time.Now()
	retries := 0

	// 非幂等步骤只执行一次；幂等步骤最多MaxRetries+1次
	attempts := uint(1)
	if step.Idempotent && step.MaxRetries > 0 {
		attempts = uint(step.MaxRetries + 1)
	}

	run := func() error {
		stepCtx := ctx
		if step.Timeout > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
			defer cancel()
		}

		result, err := step.Action(stepCtx, sc)
		if err != nil {
			return err
		}
		sc.setResult(step.Name, result)
		return nil
	}

	// 步骤级重试：有界指数退避，上限几秒（业务操作粒度）
	// 业务性失败（风控拒绝、库存不足、卡被拒）不重试——
	// 重试改变不了业务事实，只会拖慢补偿
	err := retrygo.Do(run,
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(200*time.Millisecond),
		retrygo.MaxDelay(3*time.Second),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool { return !isBusinessError(err) }),
		retrygo.OnRetry(func(n uint, err error) {
			retries = int(n) + 1
			s.log.Warn("saga step retrying",
				zap.String("saga_id", s.id),
				zap.String("step", step.Name),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)

	duration := time.Since(start)
	outcome := "success"
	res := StepResult{Name: step.Name, Success: err == nil, Duration: duration, Retries: retries}
	if err != nil {
		outcome = "failure"
		res.Error = err.Error()
	}
	s.observer.StepFinished(step.Name, outcome, duration)
	return res, err
}

// isBusinessError 判断是否为业务规则失败（4xxxx错误码空间）
// 业务失败是确定性的，步骤级重试对其无意义
func isBusinessError(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code < 50000
	}
	return false
}

// compensate 逆序补偿已完成步骤
//
// 补偿原则：
// 1. 严格按完成顺序的逆序执行
// 2. 某个补偿失败不中断后续补偿（尽最大努力撤销）
// 3. 失败的补偿记录日志并交给对账处理，不向用户暴露
func (s *Saga) compensate(ctx context.Context, sc *Context) {
	s.mu.RLock()
	completed := make([]string, len(s.completed))
	copy(completed, s.completed)
	s.mu.RUnlock()

	log := s.log.With(zap.String("saga_id", s.id))
	log.Warn("saga compensating", zap.Int("completed_steps", len(completed)))

	for i := len(completed) - 1; i >= 0; i-- {
		step, ok := s.findStep(completed[i])
		if !ok || step.Compensate == nil {
			continue
		}

		compCtx, cancel := ctx, context.CancelFunc(func() {})
		if step.Timeout > 0 {
			compCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		// 补偿失败已在runCompensation内记录并上报对账，这里继续下一个
		_ = s.runCompensation(compCtx, step, sc, log)
		cancel()
	}
}

// runCompensation 执行单个补偿并记录结果
func (s *Saga) runCompensation(ctx context.Context, step Step, sc *Context, log *zap.Logger) error {
	err := step.Compensate(ctx, sc)
	if err != nil {
		log.Error("saga compensation failed",
			zap.String("step", step.Name), zap.Error(err))
		s.observer.CompensationFinished(step.Name, "failure")
		s.onCompensationFailure(ctx, s.id, step.Name, err)
		return err
	}

	log.Info("saga compensation done", zap.String("step", step.Name))
	s.observer.CompensationFinished(step.Name, "success")
	return nil
}

// findStep 按名称查找步骤定义
func (s *Saga) findStep(name string) (Step, bool) {
	for _, st := range s.steps {
		if st.Name == name {
			return st, true
		}
	}
	return Step{}, false
}

// finish 进入终态并上报指标
func (s *Saga) finish(status Status, log *zap.Logger) {
	s.mu.Lock()
	s.status = status
	s.endedAt = time.Now()
	duration := s.endedAt.Sub(s.startedAt)
	s.mu.Unlock()

	outcome := "success"
	if status == StatusFailed {
		outcome = "failure"
	}
	s.observer.SagaFinished(outcome, duration)

	if status == StatusCompleted {
		log.Info("saga completed", zap.Duration("duration", duration))
	} else {
		log.Error("saga failed", zap.String("failed_step", s.failedStep),
			zap.Duration("duration", duration))
	}
}

// StatusSnapshot Saga状态快照
type StatusSnapshot struct {
	SagaID      string       `json:"saga_id"`
	Status      Status       `json:"status"`
	TotalSteps  int          `json:"total_steps"`
	Completed   []string     `json:"completed_steps"`
	FailedStep  string       `json:"failed_step,omitempty"`
	StepResults []StepResult `json:"step_results,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
}

// Snapshot 获取状态快照（状态查询接口）
func (s *Saga) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		SagaID:     s.id,
		Status:     s.status,
		TotalSteps: len(s.steps),
		Completed:  append([]string(nil), s.completed...),
		FailedStep: s.failedStep,
		StepResults: append([]StepResult(nil), s.stepResults...),
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// Status 当前状态
func (s *Saga) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ErrSagaNotFound Saga不存在（或已过保留期被清理）
var ErrSagaNotFound = errors.New("saga not found")
