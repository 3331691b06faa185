// Package checkout 实现下单Saga（Checkout Saga）
//
// 业务事务跨越四类资源：本地订单库、库存、风控服务、支付网关。
// 它们无法参与同一个原子提交，因此用Saga编排：
// 正向步骤按序执行、逐步记录，失败时按逆序补偿。
//
// 五个步骤（顺序即依赖顺序）：
//
//	S1 create_order      建单（非幂等，1次）    补偿：取消订单
//	S2 reserve_inventory 预留库存（幂等，≤3次） 补偿：回补库存
//	S3 check_fraud       风控评分（幂等，≤2次） 补偿：无（只读观察）
//	S4 process_payment   支付扣款（幂等，≤2次） 补偿：退款
//	S5 confirm_order     确认订单（幂等，≤3次） 补偿：取消订单（不恢复购物车）
//
// 远程调用（S3）通过网关的弹性管道（熔断器+重试）发出；
// 本地写（S1/S2/S5）在行锁保护的短事务内完成；
// 外部扣款（S4）先行，本地落库事务在扣款成功后才开——
// 绝不在数据库事务中等待第三方HTTP。
package checkout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/catalog"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/internal/proxy"
	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
	"github.com/ayo-anu/ecommerce-backend/pkg/mq"
	"github.com/ayo-anu/ecommerce-backend/pkg/saga"
)

// TxManager 事务管理接口（mysql.TxManager满足）
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FraudCaller 风控服务调用接口（proxy.Target满足）
// 通过窄接口注入，单测可替换为桩实现
type FraudCaller interface {
	Call(ctx context.Context, method, path, contentType string, body []byte) (*proxy.Result, error)
}

// ReconcilePublisher 对账事件发布接口（mq.Publisher满足）
type ReconcilePublisher interface {
	PublishCompensationFailure(ctx context.Context, ev mq.ReconciliationEvent) error
}

// UseCase 下单用例
// 教学要点:这是整个项目最核心的用例
// 涉及:Saga编排、事务处理、悲观锁并发控制、外部服务弹性调用
type UseCase struct {
	txManager   TxManager
	cartRepo    cart.Repository
	productRepo catalog.Repository
	orderRepo   order.Repository
	paymentRepo payment.Repository
	gateway     payment.GatewayClient
	fraud       FraudCaller

	registry  *saga.Registry
	observer  saga.Observer
	reconcile ReconcilePublisher // 可为nil（未配置MQ时仅日志兜底）

	cfg config.CheckoutConfig
	log *zap.Logger
}

// NewUseCase 创建下单用例
func NewUseCase(
	txManager TxManager,
	cartRepo cart.Repository,
	productRepo catalog.Repository,
	orderRepo order.Repository,
	paymentRepo payment.Repository,
	gateway payment.GatewayClient,
	fraud FraudCaller,
	registry *saga.Registry,
	observer saga.Observer,
	reconcile ReconcilePublisher,
	cfg config.CheckoutConfig,
	log *zap.Logger,
) *UseCase {
	return &UseCase{
		txManager:   txManager,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		gateway:     gateway,
		fraud:       fraud,
		registry:    registry,
		observer:    observer,
		reconcile:   reconcile,
		cfg:         cfg,
		log:         log,
	}
}

// Request 下单请求
type Request struct {
	UserID                uint
	CartID                uint
	ShippingAddress       order.ShippingAddress
	BillingSameAsShipping bool
	PaymentMethod         string
	PaymentMethodToken    string
	CustomerNotes         string
}

// Response 下单响应
type Response struct {
	OrderID     uint    `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"` // 元
	Status      string  `json:"status"`
	SagaID      string  `json:"saga_id"`
}

// Execute 执行下单Saga
//
// 取消语义：Saga与请求取消解耦（引擎内部WithoutCancel）——
// 支付成功后客户端断连，剩余步骤照常完成，客户端只是收不到响应
func (uc *UseCase) Execute(ctx context.Context, req Request) (*Response, error) {
	sg := saga.New(uc.log, uc.buildSteps(req),
		saga.WithObserver(uc.observer),
		saga.WithCompensationFailureHandler(uc.onCompensationFailure),
	)

	uc.registry.Register(sg)
	// 终态后进入保留窗口，由注册表清扫协程回收
	defer uc.registry.MarkTerminal(sg.ID())

	sc := saga.NewContext(sg.ID(), map[string]interface{}{
		"user_id": req.UserID,
		"cart_id": req.CartID,
	})

	if err := sg.Execute(ctx, sc); err != nil {
		return nil, err
	}

	orderResult := mustOrderResult(sc)
	return &Response{
		OrderID:     orderResult.OrderID,
		OrderNumber: orderResult.OrderNo,
		Total:       float64(orderResult.Total) / 100,
		Status:      string(order.StatusProcessing),
		SagaID:      sg.ID(),
	}, nil
}

// buildSteps 构建五个Saga步骤
// 超时与重试参数是业务语义的一部分（非幂等建单绝不重试）
func (uc *UseCase) buildSteps(req Request) []saga.Step {
	return []saga.Step{
		{
			Name:       stepCreateOrder,
			Action:     uc.createOrder(req),
			Compensate: uc.cancelOrderCompensation("order cancelled by saga compensation"),
			Timeout:    10 * time.Second,
			MaxRetries: 0,
			Idempotent: false,
		},
		{
			Name:       stepReserveInventory,
			Action:     uc.reserveInventory(),
			Compensate: uc.releaseInventory(),
			Timeout:    15 * time.Second,
			MaxRetries: 2,
			Idempotent: true,
		},
		{
			Name:       stepCheckFraud,
			Action:     uc.checkFraud(req),
			Compensate: nil, // 风控评分是只读观察，无需补偿
			Timeout:    10 * time.Second,
			MaxRetries: 1,
			Idempotent: true,
		},
		{
			Name:       stepProcessPayment,
			Action:     uc.processPayment(req),
			Compensate: uc.refundPayment(),
			Timeout:    30 * time.Second,
			MaxRetries: 1,
			Idempotent: true, // 幂等键保证重试不重复扣款
		},
		{
			Name:       stepConfirmOrder,
			Action:     uc.confirmOrder(req),
			Compensate: uc.cancelOrderCompensation("order cancelled after confirm failure"),
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			Idempotent: true,
		},
	}
}

// onCompensationFailure 补偿失败：记录并投递对账队列
// 资金安全兜底——退款失败的订单进入人工对账流程
func (uc *UseCase) onCompensationFailure(ctx context.Context, sagaID, step string, cause error) {
	if uc.reconcile == nil {
		return // 未配置MQ，引擎已记录错误日志
	}

	ev := mq.ReconciliationEvent{
		SagaID:        sagaID,
		Step:          step,
		Cause:         cause.Error(),
		CorrelationID: logger.CorrelationIDFromContext(ctx),
	}
	if err := uc.reconcile.PublishCompensationFailure(ctx, ev); err != nil {
		uc.log.Error("failed to publish reconciliation event",
			zap.String("saga_id", sagaID),
			zap.String("step", step),
			zap.Error(err))
	}
}

// Status 查询Saga状态
func (uc *UseCase) Status(sagaID string) (saga.StatusSnapshot, error) {
	sg, err := uc.registry.Get(sagaID)
	if err != nil {
		return saga.StatusSnapshot{}, err
	}
	return sg.Snapshot(), nil
}

// Statuses 查询全部Saga状态
func (uc *UseCase) Statuses() []saga.StatusSnapshot {
	return uc.registry.Snapshots()
}

// mustOrderResult 读取建单结果（Saga成功后必然存在）
func mustOrderResult(sc *saga.Context) *OrderResult {
	v, ok := sc.Result(stepCreateOrder)
	if !ok {
		panic(fmt.Sprintf("saga %s completed without %s result", sc.SagaID, stepCreateOrder))
	}
	return v.(*OrderResult)
}
