package order

import (
	"context"
)

// Repository 订单仓储接口
type Repository interface {
	// Create 创建订单（含明细，同一事务）
	Create(ctx context.Context, o *Order) error

	// GetByID 查询订单及明细
	GetByID(ctx context.Context, id uint) (*Order, error)

	// LockByID 悲观锁查询订单（事务内使用，库存预留/补偿时锁定订单行）
	LockByID(ctx context.Context, id uint) (*Order, error)

	// UpdateStatus 更新订单状态
	UpdateStatus(ctx context.Context, id uint, status Status) error

	// Cancel 取消订单并追加审计备注
	Cancel(ctx context.Context, id uint, auditNote string) error

	// MarkPaid 标记支付完成（payment_status=paid, paid_at=now）
	MarkPaid(ctx context.Context, id uint) error

	// MarkRefunded 标记已退款（payment_status=refunded）
	MarkRefunded(ctx context.Context, id uint) error
}
