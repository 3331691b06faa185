package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// Response 统一响应结构
// 设计说明：
// 1. Code是业务错误码（非HTTP状态码），方便客户端判断错误类型
// 2. Message是用户友好的提示信息
// 3. Data是业务数据，成功时返回，失败时省略该字段（omitempty）
// 4. CorrelationID便于客户端上报问题时关联服务端日志
type Response struct {
	Code          int         `json:"code"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// Success 成功响应（Code=0表示成功）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:          0,
		Message:       "success",
		Data:          data,
		CorrelationID: c.GetString("correlation_id"),
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:          0,
		Message:       "success",
		Data:          data,
		CorrelationID: c.GetString("correlation_id"),
	})
}

// Error 错误响应（自动处理AppError，并映射真实HTTP状态码）
// 设计说明：网关对外必须使用真实HTTP状态码——下游4xx/5xx透传、
// 熔断503、限流429，客户端和中间设备（CDN、监控）都依赖状态码语义。
// 用法：
//
//	if err := checkoutUC.Execute(ctx, req); err != nil {
//	    response.Error(c, err)
//	    return
//	}
func Error(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)

	c.JSON(HTTPStatus(appErr.Code), Response{
		Code:          appErr.Code,
		Message:       appErr.Message,
		Data:          nil,
		CorrelationID: c.GetString("correlation_id"),
	})
}

// ErrorWithCode 自定义错误码和消息
func ErrorWithCode(c *gin.Context, code int, message string) {
	c.JSON(HTTPStatus(code), Response{
		Code:          code,
		Message:       message,
		Data:          nil,
		CorrelationID: c.GetString("correlation_id"),
	})
}

// HTTPStatus 业务错误码到HTTP状态码的映射
// 映射规则（与错误码空间一致）：
// - 401xx → 401/403、429xx → 429、404xx → 404
// - 400xx业务拒绝 → 400/402、409xx参数 → 400
// - 502xx下游 → 502/503/504（50204路由不存在 → 404，50205 → 500）、500xx → 500
func HTTPStatus(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeInvalidToken,
		apperrors.ErrCodeTokenExpired, apperrors.ErrCodeTokenRevoked,
		apperrors.ErrCodeInvalidPassword:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeCartNotFound,
		apperrors.ErrCodeProductNotFound, apperrors.ErrCodeOrderNotFound,
		apperrors.ErrCodeSagaNotFound, apperrors.ErrCodePaymentNotFound,
		apperrors.ErrCodeRouteNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeFraudDeclined, apperrors.ErrCodePaymentDeclined:
		// 业务拒绝：交易被拒，语义上是"需要付款侧解决"
		return http.StatusPaymentRequired
	case apperrors.ErrCodeBusinessError, apperrors.ErrCodeInsufficientStock,
		apperrors.ErrCodeEmptyCart, apperrors.ErrCodeInvalidOrderState,
		apperrors.ErrCodeInvalidParams, apperrors.ErrCodeBindError:
		return http.StatusBadRequest
	case apperrors.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
