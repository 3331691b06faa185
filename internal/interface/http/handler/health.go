package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayo-anu/ecommerce-backend/internal/proxy"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	prober  *proxy.ReadinessProber
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(prober *proxy.ReadinessProber, version string) *HealthHandler {
	return &HealthHandler{prober: prober, version: version}
}

// Root 服务描述
// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "api-gateway",
		"version": h.version,
		"status":  "running",
		"health":  "/health",
	})
}

// Health 存活检查
// GET /health
// 进程活着即200——不做依赖检查（依赖检查属于/readiness）
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gateway",
	})
}

// Readiness 就绪检查
// GET /readiness
// 所有必需下游在短超时内响应自身/health才算就绪；
// 任一失败返回503，编排系统据此摘除流量
func (h *HealthHandler) Readiness(c *gin.Context) {
	results := h.prober.Probe(c.Request.Context())

	overall := true
	for _, healthy := range results {
		if !healthy {
			overall = false
			break
		}
	}

	status := http.StatusOK
	if !overall {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ok":       overall,
		"services": results,
	})
}
