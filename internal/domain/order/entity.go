package order

import (
	"time"
)

// Status 订单状态
// 教学要点：
// 1. 使用自定义类型而非裸string，便于编译期约束和添加方法
// 2. 值与对外JSON一致（pending/processing/cancelled）
type Status string

const (
	StatusPending    Status = "pending"    // 已建单未确认
	StatusProcessing Status = "processing" // 已支付，进入履约
	StatusCancelled  Status = "cancelled"  // 已取消（含Saga补偿取消）
)

// PaymentStatus 订单支付状态
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order 订单实体（聚合根）
// 教学要点：
// 1. 金额字段以分为单位冗余存储（Subtotal/Tax/ShippingCost/Total），
//    建单时一次计算锁定，后续目录改价不影响历史订单
// 2. 收货地址按字段快照（不引用用户地址表，地址修改不影响已建订单）
// 3. AdminNotes记录审计信息（如"由Saga补偿取消，saga_id=..."）
type Order struct {
	ID            uint
	OrderNo       string // 订单号（业务主键，全局唯一）
	UserID        uint
	Status        Status
	PaymentStatus PaymentStatus

	Subtotal     int64 // 商品小计（分）
	Tax          int64 // 税费（分）
	ShippingCost int64 // 运费（分）
	Total        int64 // 应付总额（分）

	ShippingName     string
	ShippingEmail    string
	ShippingPhone    string
	ShippingAddress1 string
	ShippingAddress2 string
	ShippingCity     string
	ShippingState    string
	ShippingCountry  string
	ShippingPostal   string

	CustomerNotes string
	AdminNotes    string

	Items  []Item
	PaidAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item 订单明细项
// 教学要点：明细是下单时刻的商品快照——名称、SKU、变体名、单价
// 全部落库，目录后续变更不会追溯修改历史订单
type Item struct {
	ID          uint
	OrderID     uint
	ProductID   uint
	VariantID   *uint
	ProductName string
	ProductSKU  string
	VariantName string
	Quantity    int
	UnitPrice   int64 // 下单时单价（分）
	TotalPrice  int64 // 行小计（分）
}

// ShippingAddress 建单请求中的收货地址
type ShippingAddress struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PostalCode   string `json:"postal_code"`
}

// NewOrder 创建新订单（工厂方法）
// 初始状态pending/pending，金额由调用方计算后传入
func NewOrder(orderNo string, userID uint, addr ShippingAddress, items []Item, subtotal, tax, shipping int64, customerNotes string) *Order {
	now := time.Now()
	country := addr.Country
	if country == "" {
		country = "US"
	}
	return &Order{
		OrderNo:          orderNo,
		UserID:           userID,
		Status:           StatusPending,
		PaymentStatus:    PaymentStatusPending,
		Subtotal:         subtotal,
		Tax:              tax,
		ShippingCost:     shipping,
		Total:            subtotal + tax + shipping,
		ShippingName:     addr.Name,
		ShippingEmail:    addr.Email,
		ShippingPhone:    addr.Phone,
		ShippingAddress1: addr.AddressLine1,
		ShippingAddress2: addr.AddressLine2,
		ShippingCity:     addr.City,
		ShippingState:    addr.State,
		ShippingCountry:  country,
		ShippingPostal:   addr.PostalCode,
		CustomerNotes:    customerNotes,
		Items:            items,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
