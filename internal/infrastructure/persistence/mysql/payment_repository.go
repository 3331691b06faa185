package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// paymentRepository 支付仓储MySQL实现
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓储实例
func NewPaymentRepository(db *gorm.DB) payment.Repository {
	return &paymentRepository{db: db}
}

// CreatePayment 创建支付记录
func (r *paymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) error {
	model := toPaymentModel(p)
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建支付记录失败")
	}
	p.ID = model.ID
	return nil
}

// GetPaymentByOrderID 按订单查询支付记录
func (r *paymentRepository) GetPaymentByOrderID(ctx context.Context, orderID uint) (*payment.Payment, error) {
	var model PaymentModel
	err := getDB(ctx, r.db).Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, apperrors.Wrap(err, "查询支付记录失败")
	}
	return toPaymentEntity(&model), nil
}

// MarkPaymentRefunded 标记支付已退款
func (r *paymentRepository) MarkPaymentRefunded(ctx context.Context, paymentID uint) error {
	result := getDB(ctx, r.db).Model(&PaymentModel{}).
		Where("id = ?", paymentID).
		Update("status", string(payment.StatusRefunded))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "标记支付退款失败")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrPaymentNotFound
	}
	return nil
}

// CreateRefund 创建退款记录
func (r *paymentRepository) CreateRefund(ctx context.Context, ref *payment.Refund) error {
	now := time.Now()
	if ref.ProcessedAt == nil {
		ref.ProcessedAt = &now
	}
	model := &RefundModel{
		PaymentID:        ref.PaymentID,
		OrderID:          ref.OrderID,
		Amount:           ref.Amount,
		Reason:           ref.Reason,
		Description:      ref.Description,
		Status:           string(ref.Status),
		ExternalRefundID: ref.ExternalRefundID,
		ProcessedAt:      ref.ProcessedAt,
	}
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "创建退款记录失败")
	}
	ref.ID = model.ID
	return nil
}
