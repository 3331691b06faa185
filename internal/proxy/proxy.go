// Package proxy 实现弹性反向代理（Resilient Proxy）
//
// 组合关系（语义契约的核心）：
//
//	proxy(request) = breaker.Call( retry.Do( single_http_attempt ) )
//
// 熔断器包在重试外层：一次"重试耗尽"只计一次熔断失败样本，
// 而不是每次尝试计一次——熔断器度量的是下游的逻辑健康度，
// 不是尝试次数。
//
// 每次尝试的工作（single_http_attempt）：
// 1. 入站body一次性读入缓冲（有界；流式body暂不支持）
// 2. 复制入站头并剥除：Host、Content-Length、Authorization
//    （终端用户凭证绝不外传，内部认证走X-Service-Auth）及逐跳头
// 3. 注入X-Correlation-ID、X-Service-Auth、trace传播头
// 4. 按(connect, read, write)超时发起请求
// 5. 重试集合内的状态码视为失败（触发重试/熔断）；
//    其余状态码一律视为成功（4xx是客户端问题，不是下游故障）
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
	"github.com/ayo-anu/ecommerce-backend/pkg/metrics"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
	"github.com/ayo-anu/ecommerce-backend/pkg/retry"
	"github.com/ayo-anu/ecommerce-backend/pkg/tracing"
)

// maxProxyBodyBytes 入站/出站body上限（有界缓冲，防内存放大）
const maxProxyBodyBytes = 10 << 20 // 10MB

// strippedHeaders 转发时剥除的请求头（常量集合）
// Authorization：终端用户凭证绝不到达下游
// Host/Content-Length：由HTTP客户端按目标重建
// 其余为RFC 7230逐跳头
var strippedHeaders = []string{
	"Authorization",
	"Host",
	"Content-Length",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// passthroughResponseHeaders 向客户端透传的下游响应头（受控集合）
var passthroughResponseHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// statusError 下游返回了重试集合内的状态码（如503）
// 实现error以驱动重试循环；最后一次的响应仍然保留用于透传
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("downstream returned retryable status %d", e.status)
}

// downstreamResponse 一次下游响应的缓冲副本
type downstreamResponse struct {
	status int
	header http.Header
	body   []byte
}

// Proxy 代理一个入站请求到目标下游
//
// 参数：
//
//	c: gin上下文（含correlation_id、入站deadline）
//	downstreamPath: 目标服务下的路径（已去除路由前缀）
func (t *Target) Proxy(c *gin.Context, downstreamPath string) {
	start := time.Now()
	ctx := c.Request.Context()
	correlationID := c.GetString("correlation_id")
	log := logger.WithCorrelationID(ctx, t.log)

	// 入站body一次性读入有界缓冲（重试需要可重放的body）
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBodyBytes))
		if err != nil {
			log.Error("failed to buffer request body", zap.Error(err))
			response.Error(c, apperrors.Wrap(err, "读取请求失败"))
			return
		}
	}

	targetURL := t.BaseURL + downstreamPath
	if q := c.Request.URL.RawQuery; q != "" {
		targetURL += "?" + q
	}

	lastResp, err := t.execute(ctx, c.Request.Method, targetURL, c.Request.Header, body, correlationID)

	duration := time.Since(start)
	metrics.ProxyRequestDuration.WithLabelValues(t.ServiceName, c.Request.Method).
		Observe(duration.Seconds())

	if err != nil {
		t.writeFailure(c, err, lastResp, correlationID, log)
		return
	}

	metrics.ProxyRequestsTotal.WithLabelValues(t.ServiceName, c.Request.Method, "success").Inc()
	t.writeResponse(c, lastResp, correlationID)
}

// execute 组合熔断器+重试执行出站调用（语义契约见包注释）
//
// 返回：
//
//	lastResp: 最后一次收到的下游响应（可能为nil）
//	err: 整体失败（ErrOpenState / statusError耗尽 / 传输故障耗尽）
//
// 熔断器只看到整体结局：重试耗尽 = 一次失败样本
func (t *Target) execute(ctx context.Context, method, targetURL string, inboundHeader http.Header, body []byte, correlationID string) (*downstreamResponse, error) {
	var lastResp *downstreamResponse

	err := t.breaker.Call(func() error {
		return retry.Do(ctx, t.retryCfg,
			t.isRetryableError,
			func(attempt int) {
				metrics.ProxyRetriesTotal.WithLabelValues(t.ServiceName).Inc()
				t.log.Warn("retrying downstream request",
					zap.String("correlation_id", correlationID),
					zap.Int("attempt", attempt),
					zap.String("url", targetURL))
			},
			func(ctx context.Context) error {
				resp, err := t.attempt(ctx, method, targetURL, inboundHeader, body, correlationID)
				if err != nil {
					return err
				}
				lastResp = resp
				if t.isRetryStatus(resp.status) {
					return &statusError{status: resp.status}
				}
				return nil
			})
	})

	return lastResp, err
}

// attempt 单次HTTP尝试
func (t *Target) attempt(ctx context.Context, method, targetURL string, inboundHeader http.Header, body []byte, correlationID string) (*downstreamResponse, error) {
	// 单次尝试的整体上限；入站deadline（若更早）自然生效
	attemptCtx, cancel := context.WithTimeout(ctx, t.attemptBudget)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造下游请求失败: %w", err)
	}

	// 复制入站头，剥除禁止转发的头
	if inboundHeader != nil {
		req.Header = inboundHeader.Clone()
	}
	for _, h := range strippedHeaders {
		req.Header.Del(h)
	}

	// 注入网关头
	req.Header.Set("X-Correlation-ID", correlationID)
	if t.AuthSecret != "" {
		req.Header.Set("X-Service-Auth", t.AuthSecret)
	}
	tracing.Inject(attemptCtx, req.Header)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取下游响应失败: %w", err)
	}

	return &downstreamResponse{
		status: resp.StatusCode,
		header: resp.Header.Clone(),
		body:   respBody,
	}, nil
}

// isRetryableError 失败分类器
// - 重试集合状态码：可重试
// - 入站取消/超时：终止（客户端已离开或预算耗尽，重试无意义）
// - 其余传输故障（连接拒绝、读超时、池超时）：可重试
func (t *Target) isRetryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// writeResponse 透传下游响应（附网关标记头）
func (t *Target) writeResponse(c *gin.Context, resp *downstreamResponse, correlationID string) {
	for _, h := range passthroughResponseHeaders {
		if v := resp.header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Header("X-Correlation-ID", correlationID)
	c.Header("X-Proxied-By", "gateway")

	contentType := resp.header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.status, contentType, resp.body)
}

// writeFailure 失败映射为客户端响应
//
// 映射规则（对外契约）：
// - 熔断打开 → 503 + 服务名 + 重试提示
// - 重试集合状态码耗尽 → 透传最后一次下游响应（它是真实响应）
// - 传输故障耗尽 → 超时504，其余502
// - 其他失败（如构造下游请求失败）同样按上一条映射为502/504，没有单独的500分支
func (t *Target) writeFailure(c *gin.Context, err error, lastResp *downstreamResponse, correlationID string, log *zap.Logger) {
	// 熔断打开：快速失败，未接触下游
	if errors.Is(err, circuitbreaker.ErrOpenState) {
		log.Warn("circuit breaker open, failing fast")
		metrics.ProxyRequestsTotal.WithLabelValues(t.ServiceName, c.Request.Method, "circuit_open").Inc()
		c.Header("X-Correlation-ID", correlationID)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"type":           "service_unavailable",
				"message":        fmt.Sprintf("服务 %s 暂时不可用", t.ServiceName),
				"service":        t.ServiceName,
				"retry_after":    "请稍后重试",
				"correlation_id": correlationID,
			},
		})
		return
	}

	// 重试集合状态码耗尽：下游给出了真实响应，按透传处理
	var se *statusError
	if errors.As(err, &se) && lastResp != nil {
		log.Warn("retries exhausted on downstream status",
			zap.Int("status", se.status))
		metrics.ProxyRequestsTotal.WithLabelValues(t.ServiceName, c.Request.Method, "upstream_error").Inc()
		t.writeResponse(c, lastResp, correlationID)
		return
	}

	// 传输故障耗尽：按根因区分504/502
	log.Error("proxy request failed", zap.Error(err))
	metrics.ProxyRequestsTotal.WithLabelValues(t.ServiceName, c.Request.Method, "error").Inc()

	status := http.StatusBadGateway
	errType := "bad_gateway"
	if isTimeoutError(err) {
		status = http.StatusGatewayTimeout
		errType = "gateway_timeout"
	}

	c.Header("X-Correlation-ID", correlationID)
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":           errType,
			"message":        fmt.Sprintf("服务 %s 调用失败", t.ServiceName),
			"service":        t.ServiceName,
			"correlation_id": correlationID,
		},
	})
}

// isTimeoutError 判断是否为超时类故障
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
