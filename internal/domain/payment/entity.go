package payment

import (
	"time"
)

// Status 支付状态
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Payment 支付实体
// 教学要点：
// 1. ExternalIntentID存储支付网关侧的intent id，对账的关联键
// 2. 本地Payment行在外部扣款成功"之后"落库（同一本地事务标记订单
//    paid）——绝不在外部HTTP调用期间持有数据库事务
type Payment struct {
	ID               uint
	OrderID          uint
	UserID           uint
	Method           string // credit_card | paypal | ...
	Amount           int64  // 分
	Status           Status
	ExternalIntentID string
	FailureReason    string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Refund 退款实体（Saga补偿产生）
type Refund struct {
	ID               uint
	PaymentID        uint
	OrderID          uint
	Amount           int64
	Reason           string
	Description      string
	Status           Status
	ExternalRefundID string
	ProcessedAt      *time.Time
	CreatedAt        time.Time
}
