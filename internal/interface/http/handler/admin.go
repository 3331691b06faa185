package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/middleware"
	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
)

// AdminHandler 运维处理器（熔断器诊断与手动干预）
type AdminHandler struct {
	breakers *circuitbreaker.Registry
	log      *zap.Logger
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(breakers *circuitbreaker.Registry, log *zap.Logger) *AdminHandler {
	return &AdminHandler{breakers: breakers, log: log}
}

// CircuitBreakers 所有熔断器状态快照
// GET /api/v1/circuit-breakers
func (h *AdminHandler) CircuitBreakers(c *gin.Context) {
	response.Success(c, gin.H{
		"circuit_breakers": h.breakers.Snapshots(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// ResetCircuitBreaker 手动重置熔断器
// POST /api/v1/circuit-breakers/:service/reset
//
// 运维兜底操作，带审计日志（谁、何时、重置了哪个服务）。
// 慎用：下游未恢复时重置只会让故障流量重新打过去
func (h *AdminHandler) ResetCircuitBreaker(c *gin.Context) {
	service := c.Param("service")

	if !h.breakers.Reset(service) {
		response.Error(c, apperrors.ErrRouteNotFound)
		return
	}

	// 审计日志：手动干预必须可追溯
	h.log.Warn("circuit breaker manually reset",
		zap.String("correlation_id", c.GetString("correlation_id")),
		zap.String("service", service),
		zap.String("operator", middleware.GetUserID(c)),
		zap.String("operator_email", middleware.GetEmail(c)))

	response.Success(c, gin.H{
		"message":   "circuit breaker reset",
		"service":   service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
