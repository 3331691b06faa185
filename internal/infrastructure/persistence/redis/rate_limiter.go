package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitStore 固定窗口限流计数器
//
// 设计说明：
// 1. 按分钟固定窗口计数：key = rate:{id}:{minuteEpoch}
// 2. INCR + EXPIRE打包进pipeline（每次都设EXPIRE），一次往返完成计数（INCR本身原子）
// 3. 已知取舍：固定窗口在窗口边界允许最多2倍突发——
//    实现简单、单key原子，当前按此方案执行；滚动窗口/令牌桶留作演进
type RateLimitStore struct {
	client *redis.Client
}

// NewRateLimitStore 创建限流计数存储
func NewRateLimitStore(client *redis.Client) *RateLimitStore {
	return &RateLimitStore{client: client}
}

// Incr 对标识id在当前分钟窗口计数一次
//
// 返回：
//
//	count: 本窗口内的累计请求数（含本次）
//	reset: 窗口重置时间（epoch秒，X-RateLimit-Reset取值）
func (s *RateLimitStore) Incr(ctx context.Context, id string) (count int64, reset int64, err error) {
	now := time.Now()
	minuteEpoch := now.Unix() / 60
	key := fmt.Sprintf("rate:%s:%d", id, minuteEpoch)
	reset = (minuteEpoch + 1) * 60

	// pipeline：INCR + EXPIRE一次往返
	// EXPIRE多设无害（窗口key生命周期固定2分钟兜底，防止key泄漏）
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, reset, err
	}

	return incr.Val(), reset, nil
}
