package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/catalog"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// productRepository 商品仓储MySQL实现
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(db *gorm.DB) catalog.Repository {
	return &productRepository{db: db}
}

// GetByID 查询商品
func (r *productRepository) GetByID(ctx context.Context, id uint) (*catalog.Product, error) {
	var model ProductModel
	err := getDB(ctx, r.db).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, apperrors.Wrap(err, "查询商品失败")
	}
	return toProductEntity(&model), nil
}

// LockByID 悲观锁查询商品(用于库存扣减/回补)
// 教学要点:
// 1. SELECT ... FOR UPDATE锁定行,其他事务等待COMMIT/ROLLBACK释放
// 2. 必须在TxManager.Transaction的context内调用,否则锁随语句立即释放
// 3. 这是防超卖的关键:锁定后检查库存再扣减,并发请求串行化
func (r *productRepository) LockByID(ctx context.Context, id uint) (*catalog.Product, error) {
	var model ProductModel
	err := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, apperrors.Wrap(err, "锁定商品失败")
	}
	return toProductEntity(&model), nil
}

// GetVariant 查询商品变体
func (r *productRepository) GetVariant(ctx context.Context, id uint) (*catalog.ProductVariant, error) {
	var model ProductVariantModel
	err := getDB(ctx, r.db).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, apperrors.Wrap(err, "查询商品变体失败")
	}
	return toVariantEntity(&model), nil
}

// AdjustStock 调整库存
// 教学要点:为什么扣减带WHERE stock_quantity >= ?条件?
// 行锁已经串行化了并发扣减,这个条件是第二道防线:
// 即使调用方忘了先LockByID,也绝不会把库存写成负数
func (r *productRepository) AdjustStock(ctx context.Context, productID uint, delta int) error {
	db := getDB(ctx, r.db)

	query := db.Model(&ProductModel{}).Where("id = ?", productID)
	if delta < 0 {
		query = query.Where("stock_quantity >= ?", -delta)
	}

	result := query.UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "调整库存失败")
	}
	if result.RowsAffected == 0 {
		if delta < 0 {
			return catalog.ErrInsufficientStock
		}
		return catalog.ErrProductNotFound
	}
	return nil
}
