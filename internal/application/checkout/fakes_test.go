package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/catalog"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	"github.com/ayo-anu/ecommerce-backend/internal/proxy"
)

// 内存桩实现：Saga步骤只依赖仓储接口，单测无需真实MySQL/Redis

// fakeTxManager 直通事务（步骤逻辑的原子性由各fake自身保证）
type fakeTxManager struct{}

func (fakeTxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeCartRepo 内存购物车
type fakeCartRepo struct {
	mu      sync.Mutex
	carts   map[uint]*cart.Cart
	cleared map[uint]bool

	clearErr error // 注入S5失败
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[uint]*cart.Cart), cleared: make(map[uint]bool)}
}

func (f *fakeCartRepo) LockByID(ctx context.Context, id uint) (*cart.Cart, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeCartRepo) GetByID(ctx context.Context, id uint) (*cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[id]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]cart.CartItem(nil), c.Items...)
	if f.cleared[id] {
		cp.Items = nil
	}
	return &cp, nil
}

func (f *fakeCartRepo) ClearItems(ctx context.Context, cartID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared[cartID] = true
	return nil
}

// fakeProductRepo 内存商品库存
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uint]*catalog.Product
	variants map[uint]*catalog.ProductVariant
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products: make(map[uint]*catalog.Product),
		variants: make(map[uint]*catalog.ProductVariant),
	}
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id uint) (*catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) LockByID(ctx context.Context, id uint) (*catalog.Product, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeProductRepo) GetVariant(ctx context.Context, id uint) (*catalog.ProductVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeProductRepo) AdjustStock(ctx context.Context, productID uint, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if delta < 0 && p.StockQuantity < -delta {
		return catalog.ErrInsufficientStock
	}
	p.StockQuantity += delta
	return nil
}

func (f *fakeProductRepo) stock(id uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

// fakeOrderRepo 内存订单
type fakeOrderRepo struct {
	mu     sync.Mutex
	nextID uint
	orders map[uint]*order.Order
	notes  map[uint][]string
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, orders: make(map[uint]*order.Order), notes: make(map[uint][]string)}
}

func (f *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = f.nextID
	f.nextID++
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) get(id uint) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	return &cp, nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id uint) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeOrderRepo) LockByID(ctx context.Context, id uint) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, id uint, status order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (f *fakeOrderRepo) Cancel(ctx context.Context, id uint, auditNote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = order.StatusCancelled
	f.notes[id] = append(f.notes[id], auditNote)
	return nil
}

func (f *fakeOrderRepo) MarkPaid(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.PaymentStatus = order.PaymentStatusPaid
	return nil
}

func (f *fakeOrderRepo) MarkRefunded(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.PaymentStatus = order.PaymentStatusRefunded
	return nil
}

// fakePaymentRepo 内存支付/退款记录
type fakePaymentRepo struct {
	mu       sync.Mutex
	nextID   uint
	payments map[uint]*payment.Payment
	refunds  []*payment.Refund
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{nextID: 1, payments: make(map[uint]*payment.Payment)}
}

func (f *fakePaymentRepo) CreatePayment(ctx context.Context, p *payment.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID
	f.nextID++
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePaymentRepo) GetPaymentByOrderID(ctx context.Context, orderID uint) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (f *fakePaymentRepo) MarkPaymentRefunded(ctx context.Context, paymentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment %d not found", paymentID)
	}
	p.Status = payment.StatusRefunded
	return nil
}

func (f *fakePaymentRepo) CreateRefund(ctx context.Context, r *payment.Refund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.refunds = append(f.refunds, &cp)
	return nil
}

// fakeGateway 支付网关桩
type fakeGateway struct {
	mu       sync.Mutex
	captures []payment.CaptureRequest
	refunds  []payment.RefundRequest

	captureErrs []error // 依次弹出；耗尽后成功
	refundErr   error
}

func (f *fakeGateway) Capture(ctx context.Context, req payment.CaptureRequest) (*payment.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, req)
	if len(f.captureErrs) > 0 {
		err := f.captureErrs[0]
		f.captureErrs = f.captureErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &payment.CaptureResult{IntentID: "pi_test_1", Status: "succeeded"}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &payment.RefundResult{RefundID: "re_test_1", Status: "succeeded"}, nil
}

// fakeFraud 风控服务桩
type fakeFraud struct {
	mu     sync.Mutex
	status int
	body   string
	err    error
	calls  int
}

func (f *fakeFraud) Call(ctx context.Context, method, path, contentType string, body []byte) (*proxy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return &proxy.Result{Status: status, Body: []byte(f.body)}, nil
}
