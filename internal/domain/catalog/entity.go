package catalog

import (
	"time"
)

// Product 商品实体（聚合根）
// 教学要点：
// 1. Price以分为单位的int64存储——浮点数表示金额会有精度问题
// 2. StockQuantity是下单扣减的权威库存（行锁保护，见repository）
// 3. TrackInventory=false的商品（如虚拟商品）不参与库存扣减
type Product struct {
	ID             uint
	Name           string
	SKU            string // 商品编码（业务主键，全局唯一）
	Price          int64  // 单价（分）
	StockQuantity  int
	TrackInventory bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductVariant 商品变体（如颜色、尺码）
// 变体可选：订单明细记录variant快照，但库存扣减在商品维度
type ProductVariant struct {
	ID              uint
	ProductID       uint
	Name            string
	PriceAdjustment int64 // 相对主商品的价格调整（分，可为负）
}

// EffectivePrice 变体生效价格
func (v *ProductVariant) EffectivePrice(p *Product) int64 {
	return p.Price + v.PriceAdjustment
}

// HasStock 库存是否满足数量要求
// 不追踪库存的商品视为永远有货
func (p *Product) HasStock(quantity int) bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity >= quantity
}
