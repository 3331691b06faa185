package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
)

// CorrelationHeader 关联ID请求/响应头
const CorrelationHeader = "X-Correlation-ID"

// Correlation 关联ID与入站deadline中间件
//
// 设计说明：
// 1. 客户端可自带X-Correlation-ID，缺失时生成UUIDv4——
//    同一个ID出现在每条日志、每个出站请求头、每个响应里
// 2. 入站deadline = 收到请求时刻 + ingressTimeout，
//    写入request context后传导到代理的每次出站尝试：
//    重试预算不会安排deadline之后的工作。Saga步骤运行在
//    context.WithoutCancel之上，不带这个deadline，只受单步超时约束
// 3. 响应头始终回写correlation id（客户端上报问题的凭据）
func Correlation(ingressTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		// 注入gin上下文（handler用）和request context（出站调用/日志用）
		c.Set("correlation_id", correlationID)
		ctx := logger.NewContext(c.Request.Context(), correlationID)

		var cancel context.CancelFunc
		if ingressTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, ingressTimeout)
			defer cancel()
		}
		c.Request = c.Request.WithContext(ctx)

		c.Header(CorrelationHeader, correlationID)
		c.Next()
	}
}
