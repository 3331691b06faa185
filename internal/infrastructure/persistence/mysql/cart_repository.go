package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// cartRepository 购物车仓储MySQL实现
type cartRepository struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储实例
func NewCartRepository(db *gorm.DB) cart.Repository {
	return &cartRepository{db: db}
}

// LockByID 悲观锁查询购物车及明细
// 建单事务内锁定购物车行:防止下单过程中用户并发增删商品,
// 保证"计价时看到的明细"与"建单落库的明细"一致
func (r *cartRepository) LockByID(ctx context.Context, id uint) (*cart.Cart, error) {
	var model CartModel
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cart.ErrCartNotFound
		}
		return nil, apperrors.Wrap(err, "锁定购物车失败")
	}
	return toCartEntity(&model), nil
}

// GetByID 查询购物车及明细
func (r *cartRepository) GetByID(ctx context.Context, id uint) (*cart.Cart, error) {
	var model CartModel
	err := getDB(ctx, r.db).Preload("Items").First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cart.ErrCartNotFound
		}
		return nil, apperrors.Wrap(err, "查询购物车失败")
	}
	return toCartEntity(&model), nil
}

// ClearItems 清空购物车明细
func (r *cartRepository) ClearItems(ctx context.Context, cartID uint) error {
	err := getDB(ctx, r.db).Where("cart_id = ?", cartID).Delete(&CartItemModel{}).Error
	if err != nil {
		return apperrors.Wrap(err, "清空购物车失败")
	}
	return nil
}
