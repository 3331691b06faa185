package payment

import (
	"context"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// CaptureRequest 扣款请求
// IdempotencyKey是跨重试的幂等键（saga_id + "-payment"）：
// 网关侧把携带相同键的重复提交视为同一笔逻辑操作，
// 因此Saga重试不会产生重复扣款
type CaptureRequest struct {
	IdempotencyKey string
	Amount         int64 // 分
	Currency       string
	Method         string
	MethodToken    string // 支付方式凭证（payment_method_id）
	OrderNo        string
	Metadata       map[string]string
}

// CaptureResult 扣款结果
type CaptureResult struct {
	IntentID string // 支付网关侧的intent id
	Status   string
}

// RefundRequest 退款请求（补偿路径，同样幂等键保护）
type RefundRequest struct {
	IdempotencyKey string
	IntentID       string
	Amount         int64
	Reason         string
}

// RefundResult 退款结果
type RefundResult struct {
	RefundID string
	Status   string
}

// GatewayClient 支付网关客户端接口（第三方，带外协作方）
//
// 错误约定：
// - 卡被拒等业务性拒绝返回ErrPaymentDeclined（终止性，不重试）
// - 网络/超时等传输错误返回普通error（可由Saga步骤重试，幂等键兜底）
type GatewayClient interface {
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// ErrPaymentDeclined 支付被拒（业务性拒绝，非基础设施故障）
var ErrPaymentDeclined = apperrors.ErrPaymentDeclined
