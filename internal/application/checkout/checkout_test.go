package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/catalog"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/saga"
)

// 教学说明：下单Saga的端到端场景测试
// 仓储用内存桩实现（见fakes_test.go），不依赖真实MySQL/Redis；
// 行级锁的串行化由数据库保证，这里验证的是Saga语义本身

// env 组装一套测试环境
type env struct {
	cartRepo    *fakeCartRepo
	productRepo *fakeProductRepo
	orderRepo   *fakeOrderRepo
	paymentRepo *fakePaymentRepo
	gateway     *fakeGateway
	fraud       *fakeFraud
	registry    *saga.Registry
	uc          *UseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		cartRepo:    newFakeCartRepo(),
		productRepo: newFakeProductRepo(),
		orderRepo:   newFakeOrderRepo(),
		paymentRepo: newFakePaymentRepo(),
		gateway:     &fakeGateway{},
		fraud:       &fakeFraud{body: `{"risk_score":0.1,"action":"approve"}`},
		registry:    saga.NewRegistry(0),
	}
	e.uc = NewUseCase(
		fakeTxManager{},
		e.cartRepo, e.productRepo, e.orderRepo, e.paymentRepo,
		e.gateway, e.fraud, e.registry,
		nil, // 指标观察者（单测不采集）
		nil, // 对账队列（单测不投递）
		config.CheckoutConfig{
			FraudFailOpen:         true,
			FreeShippingThreshold: 10000, // 100.00
			FlatShippingFee:       1000,  // 10.00
		},
		zap.NewNop(),
	)
	return e
}

// seedSingleItemCart 商品P（199.99，库存50）× 1的购物车
func (e *env) seedSingleItemCart() {
	e.productRepo.products[1] = &catalog.Product{
		ID: 1, Name: "Product P", SKU: "SKU-P", Price: 19999,
		StockQuantity: 50, TrackInventory: true, IsActive: true,
	}
	e.cartRepo.carts[10] = &cart.Cart{
		ID: 10, UserID: 7,
		Items: []cart.CartItem{{ID: 1, CartID: 10, ProductID: 1, Quantity: 1}},
	}
}

func checkoutRequest() Request {
	return Request{
		UserID: 7,
		CartID: 10,
		ShippingAddress: order.ShippingAddress{
			Name: "Jane Doe", AddressLine1: "1 Main St", City: "Springfield",
		},
		PaymentMethod:      "credit_card",
		PaymentMethodToken: "pm_test",
	}
}

// TestCheckout_HappyPath E1：全链路成功
// 期望：订单processing、金额按规则计算、库存扣到49、购物车清空
func TestCheckout_HappyPath(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)

	// 金额：小计199.99，税10%=20.00（分上四舍五入），免运费，总额219.99
	assert.InDelta(t, 219.99, resp.Total, 0.001)
	assert.Equal(t, "processing", resp.Status)
	assert.NotEmpty(t, resp.OrderNumber)
	assert.NotEmpty(t, resp.SagaID)

	o, err := e.orderRepo.GetByID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(19999), o.Subtotal)
	assert.Equal(t, int64(2000), o.Tax)
	assert.Equal(t, int64(0), o.ShippingCost)
	assert.Equal(t, int64(21999), o.Total)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)

	// 明细是下单时刻的快照
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Product P", o.Items[0].ProductName)
	assert.Equal(t, "SKU-P", o.Items[0].ProductSKU)
	assert.Equal(t, int64(19999), o.Items[0].UnitPrice)

	// 库存扣减、购物车清空
	assert.Equal(t, 49, e.productRepo.stock(1))
	assert.True(t, e.cartRepo.cleared[10])

	// 支付记录
	p, err := e.paymentRepo.GetPaymentByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, p.Status)
	assert.Equal(t, "pi_test_1", p.ExternalIntentID)
}

// TestCheckout_ShippingFeeBelowThreshold 低于免邮门槛收固定运费
func TestCheckout_ShippingFeeBelowThreshold(t *testing.T) {
	e := newEnv(t)
	e.productRepo.products[1] = &catalog.Product{
		ID: 1, Name: "Cheap", SKU: "SKU-C", Price: 2500,
		StockQuantity: 5, TrackInventory: true,
	}
	e.cartRepo.carts[10] = &cart.Cart{
		ID: 10, UserID: 7,
		Items: []cart.CartItem{{ProductID: 1, Quantity: 2}},
	}

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)

	o, _ := e.orderRepo.GetByID(context.Background(), resp.OrderID)
	assert.Equal(t, int64(5000), o.Subtotal)
	assert.Equal(t, int64(500), o.Tax)
	assert.Equal(t, int64(1000), o.ShippingCost) // 50.00 < 100.00 → 固定运费
	assert.Equal(t, int64(6500), o.Total)
}

// TestCheckout_EmptyCart 空购物车在S1拒单（无需补偿）
func TestCheckout_EmptyCart(t *testing.T) {
	e := newEnv(t)
	e.cartRepo.carts[10] = &cart.Cart{ID: 10, UserID: 7}

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeEmptyCart, appErr.Code)
}

// TestCheckout_FraudDecline E2：风控拒绝
// 期望：订单cancelled、库存回到50、无支付记录、购物车完好
func TestCheckout_FraudDecline(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.fraud.body = `{"risk_score":0.95,"action":"reject"}`

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeFraudDeclined, appErr.Code)

	// 补偿：S2库存回补、S1订单取消
	assert.Equal(t, 50, e.productRepo.stock(1))
	o, _ := e.orderRepo.GetByID(context.Background(), 1)
	assert.Equal(t, order.StatusCancelled, o.Status)

	// 未到支付步骤：无capture、无支付记录
	assert.Empty(t, e.gateway.captures)
	assert.Empty(t, e.paymentRepo.payments)

	// S5未执行：购物车不清空
	assert.False(t, e.cartRepo.cleared[10])
}

// TestCheckout_HighRiskScoreDeclines action=approve但分数≥0.9同样拒绝
func TestCheckout_HighRiskScoreDeclines(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.fraud.body = `{"risk_score":0.92,"action":"approve"}`

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeFraudDeclined, appErr.Code)
}

// TestCheckout_ReviewProceeds action=review记录后放行
func TestCheckout_ReviewProceeds(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.fraud.body = `{"risk_score":0.6,"action":"review"}`

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Status)
}

// TestCheckout_PaymentDeclined E3：卡被拒
// 期望：订单cancelled、库存回50、无支付记录、无退款（没扣到钱）
func TestCheckout_PaymentDeclined(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.gateway.captureErrs = []error{payment.ErrPaymentDeclined}

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodePaymentDeclined, appErr.Code)

	// 卡被拒是业务失败：只尝试一次capture，不重试
	assert.Len(t, e.gateway.captures, 1)

	assert.Equal(t, 50, e.productRepo.stock(1))
	o, _ := e.orderRepo.GetByID(context.Background(), 1)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Empty(t, e.paymentRepo.payments)
	assert.Empty(t, e.gateway.refunds) // 没扣到钱就没有退款
}

// TestCheckout_PaymentRetrySameIdempotencyKey 支付重试幂等性
// 瞬时故障重试后成功：两次capture携带同一个幂等键，
// 网关侧合并为同一笔扣款（至多一次成功capture）
func TestCheckout_PaymentRetrySameIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.gateway.captureErrs = []error{errors.New("connection reset")}

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)

	require.Len(t, e.gateway.captures, 2)
	assert.Equal(t, e.gateway.captures[0].IdempotencyKey, e.gateway.captures[1].IdempotencyKey)
	assert.Equal(t, resp.SagaID+"-payment", e.gateway.captures[0].IdempotencyKey)

	// 本地只有一条支付记录
	assert.Len(t, e.paymentRepo.payments, 1)
}

// TestCheckout_ConfirmFailureRefunds S5失败触发全链补偿（含退款）
func TestCheckout_ConfirmFailureRefunds(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.cartRepo.clearErr = errors.New("cart table lock timeout")

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	// S4补偿：退款（幂等键saga-refund）+ 记录退款 + 标记refunded
	require.Len(t, e.gateway.refunds, 1)
	assert.Contains(t, e.gateway.refunds[0].IdempotencyKey, "-refund")
	assert.Equal(t, "pi_test_1", e.gateway.refunds[0].IntentID)
	require.Len(t, e.paymentRepo.refunds, 1)

	// S2补偿：库存回补；S1补偿：订单取消
	assert.Equal(t, 50, e.productRepo.stock(1))
	o, _ := e.orderRepo.GetByID(context.Background(), 1)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, order.PaymentStatusRefunded, o.PaymentStatus)
}

// TestCheckout_InsufficientStock 库存不足在S2失败，只补偿S1
func TestCheckout_InsufficientStock(t *testing.T) {
	e := newEnv(t)
	e.productRepo.products[1] = &catalog.Product{
		ID: 1, Name: "Last unit", SKU: "SKU-L", Price: 19999,
		StockQuantity: 0, TrackInventory: true,
	}
	e.cartRepo.carts[10] = &cart.Cart{
		ID: 10, UserID: 7,
		Items: []cart.CartItem{{ProductID: 1, Quantity: 1}},
	}

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeInsufficientStock, appErr.Code)

	assert.Equal(t, 0, e.productRepo.stock(1))
	o, _ := e.orderRepo.GetByID(context.Background(), 1)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Empty(t, e.gateway.captures)
}

// TestCheckout_LastUnitSequential E5的串行变体：仅1件库存的两次下单
// 第一单成功、第二单S2失败并补偿S1，最终库存为0
// （并发下的串行化由数据库行锁保证，这里验证Saga语义）
func TestCheckout_LastUnitSequential(t *testing.T) {
	e := newEnv(t)
	e.productRepo.products[1] = &catalog.Product{
		ID: 1, Name: "Product Q", SKU: "SKU-Q", Price: 19999,
		StockQuantity: 1, TrackInventory: true,
	}
	e.cartRepo.carts[10] = &cart.Cart{
		ID: 10, UserID: 7,
		Items: []cart.CartItem{{ProductID: 1, Quantity: 1}},
	}
	e.cartRepo.carts[11] = &cart.Cart{
		ID: 11, UserID: 8,
		Items: []cart.CartItem{{ProductID: 1, Quantity: 1}},
	}

	// 第一单成功
	req1 := checkoutRequest()
	_, err := e.uc.Execute(context.Background(), req1)
	require.NoError(t, err)
	assert.Equal(t, 0, e.productRepo.stock(1))

	// 第二单库存不足
	req2 := checkoutRequest()
	req2.UserID = 8
	req2.CartID = 11
	_, err = e.uc.Execute(context.Background(), req2)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeInsufficientStock, appErr.Code)

	// 最终库存为0（第二单的S1被补偿、没有扣到库存）
	assert.Equal(t, 0, e.productRepo.stock(1))

	// 恰好一单processing、一单cancelled
	o1, _ := e.orderRepo.GetByID(context.Background(), 1)
	o2, _ := e.orderRepo.GetByID(context.Background(), 2)
	assert.Equal(t, order.StatusProcessing, o1.Status)
	assert.Equal(t, order.StatusCancelled, o2.Status)
}

// TestCheckout_FraudUnavailableFailOpen 风控不可用且fail-open：降级放行
func TestCheckout_FraudUnavailableFailOpen(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.fraud.err = errors.New("circuit breaker is open")

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Status)

	// 降级放行后Saga以完成状态结束
	sg, err := e.registry.Get(resp.SagaID)
	require.NoError(t, err)
	snap := sg.Snapshot()
	assert.Equal(t, saga.StatusCompleted, snap.Status)
}

// TestCheckout_FraudUnavailableFailClosed 风控不可用且fail-closed：基础设施失败
func TestCheckout_FraudUnavailableFailClosed(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()
	e.fraud.err = errors.New("all retries exhausted")
	e.uc.cfg.FraudFailOpen = false

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeUpstreamError, appErr.Code)

	// 基础设施失败同样触发补偿
	assert.Equal(t, 50, e.productRepo.stock(1))
	o, _ := e.orderRepo.GetByID(context.Background(), 1)
	assert.Equal(t, order.StatusCancelled, o.Status)
}

// TestCheckout_ReservationCompensationRestoresStock 预留+补偿的库存守恒
// reserve_inventory后执行其补偿，所有商品库存与步骤前完全一致
func TestCheckout_ReservationCompensationRestoresStock(t *testing.T) {
	e := newEnv(t)
	e.productRepo.products[1] = &catalog.Product{
		ID: 1, Name: "A", SKU: "SKU-A", Price: 1000, StockQuantity: 7, TrackInventory: true,
	}
	e.productRepo.products[2] = &catalog.Product{
		ID: 2, Name: "B", SKU: "SKU-B", Price: 2000, StockQuantity: 3, TrackInventory: true,
	}
	e.cartRepo.carts[10] = &cart.Cart{
		ID: 10, UserID: 7,
		Items: []cart.CartItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 3},
		},
	}
	// 风控拒绝触发S2补偿
	e.fraud.body = `{"risk_score":1.0,"action":"reject"}`

	_, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.Error(t, err)

	assert.Equal(t, 7, e.productRepo.stock(1))
	assert.Equal(t, 3, e.productRepo.stock(2))
}

// TestCheckout_SagaStatusQuery 终态后保留窗口内可查询状态
func TestCheckout_SagaStatusQuery(t *testing.T) {
	e := newEnv(t)
	e.seedSingleItemCart()

	resp, err := e.uc.Execute(context.Background(), checkoutRequest())
	require.NoError(t, err)

	snap, err := e.uc.Status(resp.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, snap.Status)
	assert.Equal(t, 5, snap.TotalSteps)
	assert.Len(t, snap.Completed, 5)

	_, err = e.uc.Status("nonexistent")
	assert.Error(t, err)
}
