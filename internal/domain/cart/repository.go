package cart

import (
	"context"
)

// Repository 购物车仓储接口
type Repository interface {
	// LockByID 悲观锁查询购物车及明细（事务内使用）
	// 建单期间锁定购物车，防止用户并发修改导致价格/数量不一致
	LockByID(ctx context.Context, id uint) (*Cart, error)

	// GetByID 查询购物车及明细
	GetByID(ctx context.Context, id uint) (*Cart, error)

	// ClearItems 清空购物车明细
	ClearItems(ctx context.Context, cartID uint) error
}
