package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ayo-anu/ecommerce-backend/internal/proxy"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
)

// ProxyHandler 代理处理器
// 把命中路由表的入站请求交给对应Target的弹性管道
type ProxyHandler struct {
	router *proxy.Router
}

// NewProxyHandler 创建代理处理器
func NewProxyHandler(router *proxy.Router) *ProxyHandler {
	return &ProxyHandler{router: router}
}

// Handle 按最长前缀匹配转发
// ANY /api/v1/<service>/*path
func (h *ProxyHandler) Handle(c *gin.Context) {
	target, rest, ok := h.router.Match(c.Request.URL.Path)
	if !ok {
		response.Error(c, apperrors.ErrRouteNotFound)
		return
	}

	target.Proxy(c, rest)
}
