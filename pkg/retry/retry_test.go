package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient failure")

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		ExpBase:    2.0,
		Jitter:     false,
	}
}

func alwaysRetryable(error) bool { return true }

// TestDo_Success 首次成功不重试
func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3),
		func(error) bool { return true }, nil,
		func(ctx context.Context) error {
			attempts++
			return nil
		})

	if err != nil {
		t.Fatalf("期望成功，实际%v", err)
	}
	if attempts != 1 {
		t.Errorf("期望1次尝试，实际%d次", attempts)
	}
}

// TestDo_ExactAttemptBudget 持续失败的下游恰好被调用MaxRetries+1次
func TestDo_ExactAttemptBudget(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3),
		func(error) bool { return true }, nil,
		func(ctx context.Context) error {
			attempts++
			return errTransient
		})

	if !errors.Is(err, errTransient) {
		t.Fatalf("期望返回最后一次错误，实际%v", err)
	}
	if attempts != 4 {
		t.Errorf("MaxRetries=3期望4次尝试，实际%d次", attempts)
	}
}

// TestDo_TerminalShortCircuits 终止性失败立即短路
func TestDo_TerminalShortCircuits(t *testing.T) {
	terminal := errors.New("client error")
	attempts := 0

	err := Do(context.Background(), fastConfig(5),
		func(err error) bool { return !errors.Is(err, terminal) }, nil,
		func(ctx context.Context) error {
			attempts++
			return terminal
		})

	if !errors.Is(err, terminal) {
		t.Fatalf("期望terminal错误，实际%v", err)
	}
	if attempts != 1 {
		t.Errorf("终止性失败期望1次尝试，实际%d次", attempts)
	}
}

// TestDo_RecoversAfterRetries 中途恢复
func TestDo_RecoversAfterRetries(t *testing.T) {
	attempts := 0
	onRetryCalls := 0

	err := Do(context.Background(), fastConfig(3),
		func(error) bool { return true },
		func(attempt int) { onRetryCalls++ },
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errTransient
			}
			return nil
		})

	if err != nil {
		t.Fatalf("期望最终成功，实际%v", err)
	}
	if attempts != 3 {
		t.Errorf("期望3次尝试，实际%d次", attempts)
	}
	if onRetryCalls != 2 {
		t.Errorf("期望2次重试回调，实际%d次", onRetryCalls)
	}
}

// TestDo_DeadlineTrimsBudget 入站deadline裁剪重试预算
// 不会安排任何在deadline之后开始的尝试
func TestDo_DeadlineTrimsBudget(t *testing.T) {
	cfg := Config{
		MaxRetries: 10,
		BaseDelay:  200 * time.Millisecond, // 每次等待都超过剩余预算
		MaxDelay:   time.Second,
		ExpBase:    2.0,
		Jitter:     false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := Do(ctx, cfg,
		func(error) bool { return true }, nil,
		func(ctx context.Context) error {
			attempts++
			return errTransient
		})

	if !errors.Is(err, errTransient) {
		t.Fatalf("期望返回最后一次错误，实际%v", err)
	}
	// 第一次尝试后，200ms的等待会越过100ms的deadline → 立即停止
	if attempts != 1 {
		t.Errorf("deadline裁剪后期望1次尝试，实际%d次", attempts)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("不应该等待到deadline之后，耗时%v", elapsed)
	}
}

// TestDo_ContextCancelStops ctx取消立即停止
func TestDo_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastConfig(5)
	cfg.BaseDelay = 50 * time.Millisecond

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg,
		func(error) bool { return true }, nil,
		func(ctx context.Context) error {
			attempts++
			return errTransient
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("期望context.Canceled，实际%v", err)
	}
}

// TestDelay_ExponentialGrowth 无抖动时指数增长且封顶
func TestDelay_ExponentialGrowth(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		ExpBase:   2.0,
		Jitter:    false,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // 1600ms封顶到1s
		{5, time.Second},
	}

	for _, tc := range cases {
		got := Delay(cfg, tc.attempt)
		if got != tc.want {
			t.Errorf("attempt=%d期望%v，实际%v", tc.attempt, tc.want, got)
		}
	}
}

// TestDelay_JitterBounds 抖动边界
// 第n次等待 ∈ [0.5·min(M, b·2^n), min(M, b·2^n))
func TestDelay_JitterBounds(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		ExpBase:   2.0,
		Jitter:    true,
	}

	for attempt := 0; attempt < 6; attempt++ {
		full := float64(cfg.BaseDelay) * pow2(attempt)
		if full > float64(cfg.MaxDelay) {
			full = float64(cfg.MaxDelay)
		}
		lower := time.Duration(full * 0.5)
		upper := time.Duration(full)

		// 抖动是随机的，多采样验证边界
		for i := 0; i < 100; i++ {
			got := Delay(cfg, attempt)
			if got < lower || got >= upper {
				t.Fatalf("attempt=%d抖动越界: %v 不在 [%v, %v)", attempt, got, lower, upper)
			}
		}
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}
