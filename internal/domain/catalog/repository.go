package catalog

import (
	"context"
)

// Repository 商品仓储接口
//
// 教学要点：
// 1. 接口定义在domain层，实现在infrastructure层（依赖倒置）
// 2. LockByID用于库存扣减前的悲观锁定（SELECT ... FOR UPDATE），
//    必须在事务context中调用，锁在事务COMMIT/ROLLBACK时释放
type Repository interface {
	// GetByID 查询商品
	GetByID(ctx context.Context, id uint) (*Product, error)

	// LockByID 悲观锁查询商品（事务内使用）
	LockByID(ctx context.Context, id uint) (*Product, error)

	// GetVariant 查询商品变体
	GetVariant(ctx context.Context, id uint) (*ProductVariant, error)

	// AdjustStock 调整库存（delta可为负，扣减时校验不为负库存）
	// 必须在持有行锁的事务内调用
	AdjustStock(ctx context.Context, productID uint, delta int) error
}
