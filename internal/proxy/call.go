package proxy

import (
	"context"
	"net/http"

	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
)

// Result 程序化调用的下游响应
type Result struct {
	Status int
	Body   []byte
}

// Call 程序化调用下游（Saga步骤等服务端调用路径使用）
//
// 与Proxy走同一条弹性管道：熔断器 → 重试 → 单次尝试。
// Saga的风控评分就是一次这样的调用——它的正确性依赖
// 与入口代理完全一致的重试/超时语义。
//
// 与Proxy的区别：
// - 无入站请求可透传，请求头从零构建（仍注入correlation/trace/服务认证）
// - 错误不映射HTTP响应，原样返回给调用方分类处理
//
// 返回：
//
//	result: 下游的真实响应（err非nil时可能为nil）
//	err: 熔断打开（circuitbreaker.ErrOpenState）或重试耗尽
func (t *Target) Call(ctx context.Context, method, path string, contentType string, body []byte) (*Result, error) {
	correlationID := logger.CorrelationIDFromContext(ctx)

	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	resp, err := t.execute(ctx, method, t.BaseURL+path, header, body, correlationID)
	if err != nil {
		return nil, err
	}
	return &Result{Status: resp.status, Body: resp.body}, nil
}
