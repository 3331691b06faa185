package mysql

import (
	"time"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/catalog"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
)

// 持久化模型（PO）与领域实体分离
// 教学要点：
// 1. gorm标签只出现在持久化层，领域实体保持纯净
// 2. 金额全部为int64（分），与领域约定一致
// 3. 快照字段（订单明细）落库后不再随目录变化

// ProductModel 商品表
type ProductModel struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"size:255;not null"`
	SKU            string `gorm:"size:64;uniqueIndex;not null"`
	Price          int64  `gorm:"not null"`
	StockQuantity  int    `gorm:"not null;default:0"`
	TrackInventory bool   `gorm:"not null;default:true"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定表名
func (ProductModel) TableName() string { return "products" }

// ProductVariantModel 商品变体表
type ProductVariantModel struct {
	ID              uint   `gorm:"primaryKey"`
	ProductID       uint   `gorm:"index;not null"`
	Name            string `gorm:"size:128;not null"`
	PriceAdjustment int64  `gorm:"not null;default:0"`
}

func (ProductVariantModel) TableName() string { return "product_variants" }

// CartModel 购物车表
type CartModel struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index;not null"`
	Items     []CartItemModel `gorm:"foreignKey:CartID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CartModel) TableName() string { return "carts" }

// CartItemModel 购物车明细表
type CartItemModel struct {
	ID        uint  `gorm:"primaryKey"`
	CartID    uint  `gorm:"index;not null"`
	ProductID uint  `gorm:"not null"`
	VariantID *uint
	Quantity  int `gorm:"not null"`
}

func (CartItemModel) TableName() string { return "cart_items" }

// OrderModel 订单表
type OrderModel struct {
	ID            uint   `gorm:"primaryKey"`
	OrderNo       string `gorm:"size:32;uniqueIndex;not null"`
	UserID        uint   `gorm:"index;not null"`
	Status        string `gorm:"size:20;index;not null"`
	PaymentStatus string `gorm:"size:20;not null"`

	Subtotal     int64 `gorm:"not null"`
	Tax          int64 `gorm:"not null"`
	ShippingCost int64 `gorm:"not null"`
	Total        int64 `gorm:"not null"`

	ShippingName     string `gorm:"size:128"`
	ShippingEmail    string `gorm:"size:255"`
	ShippingPhone    string `gorm:"size:32"`
	ShippingAddress1 string `gorm:"size:255"`
	ShippingAddress2 string `gorm:"size:255"`
	ShippingCity     string `gorm:"size:128"`
	ShippingState    string `gorm:"size:128"`
	ShippingCountry  string `gorm:"size:2"`
	ShippingPostal   string `gorm:"size:32"`

	CustomerNotes string `gorm:"type:text"`
	AdminNotes    string `gorm:"type:text"`

	Items  []OrderItemModel `gorm:"foreignKey:OrderID"`
	PaidAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 订单明细表（下单时刻快照）
type OrderItemModel struct {
	ID          uint   `gorm:"primaryKey"`
	OrderID     uint   `gorm:"index;not null"`
	ProductID   uint   `gorm:"not null"`
	VariantID   *uint
	ProductName string `gorm:"size:255;not null"`
	ProductSKU  string `gorm:"size:64;not null"`
	VariantName string `gorm:"size:128"`
	Quantity    int    `gorm:"not null"`
	UnitPrice   int64  `gorm:"not null"`
	TotalPrice  int64  `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// PaymentModel 支付表
type PaymentModel struct {
	ID               uint   `gorm:"primaryKey"`
	OrderID          uint   `gorm:"index;not null"`
	UserID           uint   `gorm:"index;not null"`
	Method           string `gorm:"size:32;not null"`
	Amount           int64  `gorm:"not null"`
	Status           string `gorm:"size:20;not null"`
	ExternalIntentID string `gorm:"size:128;index"`
	FailureReason    string `gorm:"type:text"`
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (PaymentModel) TableName() string { return "payments" }

// RefundModel 退款表
type RefundModel struct {
	ID               uint   `gorm:"primaryKey"`
	PaymentID        uint   `gorm:"index;not null"`
	OrderID          uint   `gorm:"index;not null"`
	Amount           int64  `gorm:"not null"`
	Reason           string `gorm:"size:64"`
	Description      string `gorm:"type:text"`
	Status           string `gorm:"size:20;not null"`
	ExternalRefundID string `gorm:"size:128"`
	ProcessedAt      *time.Time
	CreatedAt        time.Time
}

func (RefundModel) TableName() string { return "refunds" }

// =========================================
// 模型 ↔ 实体 转换
// =========================================

func toProductEntity(m *ProductModel) *catalog.Product {
	return &catalog.Product{
		ID:             m.ID,
		Name:           m.Name,
		SKU:            m.SKU,
		Price:          m.Price,
		StockQuantity:  m.StockQuantity,
		TrackInventory: m.TrackInventory,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toVariantEntity(m *ProductVariantModel) *catalog.ProductVariant {
	return &catalog.ProductVariant{
		ID:              m.ID,
		ProductID:       m.ProductID,
		Name:            m.Name,
		PriceAdjustment: m.PriceAdjustment,
	}
}

func toCartEntity(m *CartModel) *cart.Cart {
	items := make([]cart.CartItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = cart.CartItem{
			ID:        it.ID,
			CartID:    it.CartID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}
	return &cart.Cart{
		ID:        m.ID,
		UserID:    m.UserID,
		Items:     items,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toOrderModel(o *order.Order) *OrderModel {
	items := make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemModel{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			VariantName: it.VariantName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		}
	}
	return &OrderModel{
		ID:               o.ID,
		OrderNo:          o.OrderNo,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		Subtotal:         o.Subtotal,
		Tax:              o.Tax,
		ShippingCost:     o.ShippingCost,
		Total:            o.Total,
		ShippingName:     o.ShippingName,
		ShippingEmail:    o.ShippingEmail,
		ShippingPhone:    o.ShippingPhone,
		ShippingAddress1: o.ShippingAddress1,
		ShippingAddress2: o.ShippingAddress2,
		ShippingCity:     o.ShippingCity,
		ShippingState:    o.ShippingState,
		ShippingCountry:  o.ShippingCountry,
		ShippingPostal:   o.ShippingPostal,
		CustomerNotes:    o.CustomerNotes,
		AdminNotes:       o.AdminNotes,
		Items:            items,
		PaidAt:           o.PaidAt,
	}
}

func toOrderEntity(m *OrderModel) *order.Order {
	items := make([]order.Item, len(m.Items))
	for i, it := range m.Items {
		items[i] = order.Item{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			VariantName: it.VariantName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		}
	}
	return &order.Order{
		ID:               m.ID,
		OrderNo:          m.OrderNo,
		UserID:           m.UserID,
		Status:           order.Status(m.Status),
		PaymentStatus:    order.PaymentStatus(m.PaymentStatus),
		Subtotal:         m.Subtotal,
		Tax:              m.Tax,
		ShippingCost:     m.ShippingCost,
		Total:            m.Total,
		ShippingName:     m.ShippingName,
		ShippingEmail:    m.ShippingEmail,
		ShippingPhone:    m.ShippingPhone,
		ShippingAddress1: m.ShippingAddress1,
		ShippingAddress2: m.ShippingAddress2,
		ShippingCity:     m.ShippingCity,
		ShippingState:    m.ShippingState,
		ShippingCountry:  m.ShippingCountry,
		ShippingPostal:   m.ShippingPostal,
		CustomerNotes:    m.CustomerNotes,
		AdminNotes:       m.AdminNotes,
		Items:            items,
		PaidAt:           m.PaidAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toPaymentModel(p *payment.Payment) *PaymentModel {
	return &PaymentModel{
		ID:               p.ID,
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		Method:           p.Method,
		Amount:           p.Amount,
		Status:           string(p.Status),
		ExternalIntentID: p.ExternalIntentID,
		FailureReason:    p.FailureReason,
		PaidAt:           p.PaidAt,
	}
}

func toPaymentEntity(m *PaymentModel) *payment.Payment {
	return &payment.Payment{
		ID:               m.ID,
		OrderID:          m.OrderID,
		UserID:           m.UserID,
		Method:           m.Method,
		Amount:           m.Amount,
		Status:           payment.Status(m.Status),
		ExternalIntentID: m.ExternalIntentID,
		FailureReason:    m.FailureReason,
		PaidAt:           m.PaidAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
