package mysql

import (
	"context"

	"gorm.io/gorm"
)

// txKey context中事务DB的键（包内私有类型，避免键冲突）
type txKey struct{}

// TxManager 事务管理器
// 教学要点:
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB(避免全局变量)
// 3. 支持嵌套事务(GORM自动使用Savepoint)
//
// 约定（与Saga正确性直接相关）：
// - 事务必须短（毫秒级），事务内只做本地读写
// - 绝不在事务内发起外部HTTP调用——支付步骤先完成外部扣款，
//   再开本地事务落库
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
// 教学要点:
// 1. fn函数内的所有Repository操作都会在同一事务中执行
// 2. fn返回error时自动ROLLBACK,返回nil时自动COMMIT
// 3. 行锁（LockByID）在COMMIT/ROLLBACK时释放
//
// 使用示例:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    p, err := productRepo.LockByID(ctx, productID) // FOR UPDATE
//	    if err != nil {
//	        return err
//	    }
//	    if !p.HasStock(quantity) {
//	        return catalog.ErrInsufficientStock // 自动回滚
//	    }
//	    return productRepo.AdjustStock(ctx, productID, -quantity)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// 已在事务内时从事务DB开启（GORM按Savepoint嵌套）
	return getDB(ctx, m.db).Transaction(func(tx *gorm.DB) error {
		// 将事务DB注入到Context中
		// Repository的getDB方法会从context提取事务DB
		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// getDB 从context提取事务DB，不存在则返回基础DB
// 所有Repository共用：事务内外的代码路径保持一致
func getDB(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return base.WithContext(ctx)
}
