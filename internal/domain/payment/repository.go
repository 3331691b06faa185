package payment

import (
	"context"
)

// Repository 支付仓储接口
type Repository interface {
	// CreatePayment 创建支付记录
	CreatePayment(ctx context.Context, p *Payment) error

	// GetPaymentByOrderID 按订单查询支付记录
	GetPaymentByOrderID(ctx context.Context, orderID uint) (*Payment, error)

	// MarkPaymentRefunded 标记支付已退款
	MarkPaymentRefunded(ctx context.Context, paymentID uint) error

	// CreateRefund 创建退款记录
	CreateRefund(ctx context.Context, r *Refund) error
}
