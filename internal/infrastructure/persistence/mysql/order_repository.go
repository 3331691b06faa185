package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// orderRepository 订单仓储MySQL实现
// 教学要点：
// 1. 小写命名（私有）：只暴露接口，隐藏实现
// 2. 依赖注入：通过构造函数传入*gorm.DB
// 3. 所有方法通过getDB(ctx)取DB——事务内外同一套代码
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepository{db: db}
}

// Create 创建订单（含明细）
// GORM识别外键关系：先插orders行，再插order_items行，
// 都在当前事务内，任一失败整体回滚
func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	model := toOrderModel(o)

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			// 订单号冲突（随机数碰撞），调用方可重新生成后重试
			return apperrors.WrapWithCode(err, apperrors.ErrCodeBusinessError, "订单号冲突")
		}
		return apperrors.Wrap(err, "创建订单失败")
	}

	// 回填自增ID（聚合根 + 明细）
	o.ID = model.ID
	for i := range model.Items {
		o.Items[i].ID = model.Items[i].ID
		o.Items[i].OrderID = model.ID
	}
	return nil
}

// GetByID 查询订单及明细
func (r *orderRepository) GetByID(ctx context.Context, id uint) (*order.Order, error) {
	var model OrderModel
	err := getDB(ctx, r.db).Preload("Items").First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(err, "查询订单失败")
	}
	return toOrderEntity(&model), nil
}

// LockByID 悲观锁查询订单及明细（事务内使用）
func (r *orderRepository) LockByID(ctx context.Context, id uint) (*order.Order, error) {
	var model OrderModel
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(err, "锁定订单失败")
	}
	return toOrderEntity(&model), nil
}

// UpdateStatus 更新订单状态
func (r *orderRepository) UpdateStatus(ctx context.Context, id uint, status order.Status) error {
	result := getDB(ctx, r.db).Model(&OrderModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新订单状态失败")
	}
	if result.RowsAffected == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// Cancel 取消订单并追加审计备注
// 审计备注记录取消来源（如saga_id），排障时可追溯
func (r *orderRepository) Cancel(ctx context.Context, id uint, auditNote string) error {
	result := getDB(ctx, r.db).Model(&OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      string(order.StatusCancelled),
			"admin_notes": gorm.Expr("CONCAT(admin_notes, ?)", fmt.Sprintf("\n%s", auditNote)),
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "取消订单失败")
	}
	if result.RowsAffected == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// MarkPaid 标记支付完成
func (r *orderRepository) MarkPaid(ctx context.Context, id uint) error {
	result := getDB(ctx, r.db).Model(&OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_status": string(order.PaymentStatusPaid),
			"paid_at":        gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "标记支付完成失败")
	}
	if result.RowsAffected == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// MarkRefunded 标记已退款
func (r *orderRepository) MarkRefunded(ctx context.Context, id uint) error {
	result := getDB(ctx, r.db).Model(&OrderModel{}).
		Where("id = ?", id).
		Update("payment_status", string(order.PaymentStatusRefunded))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "标记退款失败")
	}
	if result.RowsAffected == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}
