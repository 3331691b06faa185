package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ayo-anu/ecommerce-backend/internal/application/checkout"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/dto"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/middleware"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
)

// CheckoutHandler 下单处理器
type CheckoutHandler struct {
	usecase *checkout.UseCase
}

// NewCheckoutHandler 创建下单处理器
func NewCheckoutHandler(usecase *checkout.UseCase) *CheckoutHandler {
	return &CheckoutHandler{usecase: usecase}
}

// Checkout 执行下单Saga
// POST /api/v1/checkout
//
// 响应：
// - 201: Saga成功，订单进入processing
// - 400/402: 业务拒绝（空购物车/库存不足/风控拒绝/支付被拒），已补偿
// - 502/504: 基础设施失败，已补偿，correlation_id供排障
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBindError)
		return
	}

	userID, err := strconv.ParseUint(middleware.GetUserID(c), 10, 32)
	if err != nil {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billingSame := true
	if req.BillingSameAsShipping != nil {
		billingSame = *req.BillingSameAsShipping
	}

	result, err := h.usecase.Execute(c.Request.Context(), checkout.Request{
		UserID:                uint(userID),
		CartID:                req.CartID,
		ShippingAddress:       req.ShippingAddress,
		BillingSameAsShipping: billingSame,
		PaymentMethod:         req.PaymentMethod,
		PaymentMethodToken:    req.PaymentMethodID,
		CustomerNotes:         req.CustomerNotes,
	})
	if err != nil {
		// Saga错误链里保留了失败步骤的原始AppError，
		// response.Error据此映射400/402/502/504
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// SagaStatus 查询Saga状态
// GET /api/v1/sagas/:id
func (h *CheckoutHandler) SagaStatus(c *gin.Context) {
	snap, err := h.usecase.Status(c.Param("id"))
	if err != nil {
		response.Error(c, apperrors.ErrSagaNotFound)
		return
	}
	response.Success(c, snap)
}

// SagaList 查询全部Saga状态
// GET /api/v1/sagas
func (h *CheckoutHandler) SagaList(c *gin.Context) {
	response.Success(c, h.usecase.Statuses())
}
