package dto

import (
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
)

// CheckoutRequest 下单请求
type CheckoutRequest struct {
	CartID                uint                  `json:"cart_id" binding:"required"`
	ShippingAddress       order.ShippingAddress `json:"shipping_address" binding:"required"`
	BillingSameAsShipping *bool                 `json:"billing_same_as_shipping,omitempty"`
	PaymentMethod         string                `json:"payment_method" binding:"required"`
	PaymentMethodID       string                `json:"payment_method_id"`
	CustomerNotes         string                `json:"customer_notes"`
}
