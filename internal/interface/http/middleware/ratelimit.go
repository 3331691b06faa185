package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/persistence/redis"
	"github.com/ayo-anu/ecommerce-backend/pkg/metrics"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
)

// RateLimiter 固定窗口限流中间件
//
// 设计说明：
// 1. 标识优先用户ID（已认证），否则用客户端IP——
//    所以限流中间件注册在认证中间件之后
// 2. 每个非豁免响应都带X-RateLimit-*头（客户端可自适应退避）
// 3. 计数存储故障时fail-open：限流是保护机制不是安全边界，
//    Redis抖动不应该放大成全站不可用
// 4. 健康检查/指标端点豁免（由路由注册位置保证，不经过本中间件）
type RateLimiter struct {
	store     *redis.RateLimitStore
	perMinute int
	log       *zap.Logger
}

// NewRateLimiter 创建限流中间件
func NewRateLimiter(store *redis.RateLimitStore, perMinute int, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		store:     store,
		perMinute: perMinute,
		log:       log,
	}
}

// Limit 执行限流
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.GetString("user_id")
		if identifier == "" {
			identifier = c.ClientIP()
		}

		count, reset, err := rl.store.Incr(c.Request.Context(), identifier)
		if err != nil {
			// fail-open：计数不可用时放行并告警
			rl.log.Warn("rate limit store unavailable, failing open",
				zap.String("correlation_id", c.GetString("correlation_id")),
				zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(rl.perMinute) - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(rl.perMinute) {
			metrics.RateLimitedTotal.Inc()
			retryAfter := reset - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			response.ErrorWithCode(c, 42900, "请求过于频繁，请稍后重试")
			c.Abort()
			return
		}

		c.Next()
	}
}
