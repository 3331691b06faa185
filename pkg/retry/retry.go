// Package retry 实现有界重试执行器（Retry Executor）
//
// 核心语义：
// 1. 最多执行MaxRetries+1次
// 2. 两次尝试之间等待 min(MaxDelay, BaseDelay * ExpBase^attempt)
// 3. 开启抖动（Jitter）时，等待时间乘以[0.5, 1.0)内的均匀随机数
//    ——把各客户端的恢复重试在时间上打散，避免惊群
// 4. 终止性失败（如4xx、熔断器打开）立即短路，不再消耗剩余次数
// 5. 入站deadline裁剪重试预算：不会安排任何在deadline之后开始的尝试
//
// 为什么不复用pkg外的重试库（avast/retry-go已用于saga步骤重试）？
// - 熔断器要求"整体重试结局计为一次失败样本"，重试器必须把每次尝试的
//   结果原样暴露给外层组合，而不是聚合成自己的错误类型
// - [0.5,1.0)全抖动和deadline裁剪是网关协议的一部分，必须可单测验证
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config 重试配置（每个下游服务一份，进程内不变）
type Config struct {
	MaxRetries int           // 最大重试次数（总尝试数 = MaxRetries + 1）
	BaseDelay  time.Duration // 首次重试前的基础等待
	MaxDelay   time.Duration // 等待时间上限
	ExpBase    float64       // 指数底数（通常为2）
	Jitter     bool          // 是否启用全抖动
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		ExpBase:    2.0,
		Jitter:     true,
	}
}

// Delay 计算第attempt次重试前的等待时间（attempt从0开始）
//
// 公式：min(MaxDelay, BaseDelay * ExpBase^attempt)，
// 启用抖动时乘以[0.5, 1.0)内的均匀随机数。
// 独立导出便于测试验证抖动边界。
func Delay(cfg Config, attempt int) time.Duration {
	base := float64(cfg.BaseDelay) * math.Pow(cfg.ExpBase, float64(attempt))
	capped := math.Min(base, float64(cfg.MaxDelay))

	if cfg.Jitter {
		capped *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(capped)
}

// Do 执行op，按配置重试
//
// 参数：
//
//	ctx: 携带入站deadline；deadline裁剪重试预算，ctx取消立即停止
//	cfg: 重试配置
//	retryable: 失败分类器，返回false表示终止性失败（立即短路）
//	onRetry: 每次重试前回调（attempt从1开始），用于指标/日志，可为nil
//	op: 实际操作；注意op内部不应吞掉可分类的错误
//
// 返回：最后一次尝试的错误（全部成功则为nil）
//
// 语义保证：
// - 持续可重试失败的下游，恰好被调用MaxRetries+1次
// - 不会安排任何在ctx.Deadline()之后开始的尝试
func Do(ctx context.Context, cfg Config, retryable func(error) bool, onRetry func(attempt int), op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 && onRetry != nil {
			onRetry(attempt)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		// 终止性失败：不再消耗剩余尝试
		if !retryable(lastErr) {
			return lastErr
		}

		// 已是最后一次尝试
		if attempt == cfg.MaxRetries {
			break
		}

		// 计算等待时间，并用deadline裁剪预算：
		// 下一次尝试的开始时间（now+delay）不得晚于deadline
		delay := Delay(cfg, attempt)
		if deadline, ok := ctx.Deadline(); ok {
			if time.Now().Add(delay).After(deadline) {
				return lastErr
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
