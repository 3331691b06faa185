package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/cart"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/order"
	"github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
	"github.com/ayo-anu/ecommerce-backend/pkg/saga"
)

// 步骤名（Saga结果map的键，也出现在指标标签里）
const (
	stepCreateOrder      = "create_order"
	stepReserveInventory = "reserve_inventory"
	stepCheckFraud       = "check_fraud"
	stepProcessPayment   = "process_payment"
	stepConfirmOrder     = "confirm_order"
)

// 税率与金额规则：
// 税费 = 小计的10%，按分四舍五入；运费低于免邮门槛收固定费
const taxRatePercent = 10

// roundedTax 计算税费（分，四舍五入）
func roundedTax(subtotal int64) int64 {
	return (subtotal*taxRatePercent + 50) / 100
}

// OrderResult S1建单结果
type OrderResult struct {
	OrderID    uint   `json:"order_id"`
	OrderNo    string `json:"order_number"`
	Total      int64  `json:"total"` // 分
	ItemsCount int    `json:"items_count"`
	CartID     uint   `json:"cart_id"`
}

// Reservation 单件商品的库存预留记录
type Reservation struct {
	ProductID      uint   `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity_reserved"`
	RemainingStock int    `json:"remaining_stock"`
}

// ReservationResult S2库存预留结果（补偿按记录的数量回补）
type ReservationResult struct {
	Reservations []Reservation `json:"reservations"`
}

// FraudResult S3风控评分结果
type FraudResult struct {
	RiskScore   float64  `json:"risk_score"`
	Action      string   `json:"action"` // approve | review | reject
	RiskFactors []string `json:"risk_factors,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"` // 风控不可用降级放行
}

// PaymentResult S4支付结果
type PaymentResult struct {
	PaymentID uint   `json:"payment_id"`
	IntentID  string `json:"intent_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// =========================================
// S1 create_order 建单
// =========================================

// createOrder 在单个本地事务内建单
//
// 教学重点:价格在此刻锁定
// 1. FOR UPDATE锁定购物车（防止下单中用户并发改购物车）
// 2. 空购物车拒单
// 3. 用目录当前价格计算小计（明细快照落库，后续改价不影响历史）
// 4. 税费10%、低于免邮门槛收固定运费
// 5. 订单+明细同一事务落库
func (uc *UseCase) createOrder(req Request) func(ctx context.Context, sc *saga.Context) (interface{}, error) {
	return func(ctx context.Context, sc *saga.Context) (interface{}, error) {
		log := logger.WithCorrelationID(ctx, uc.log).With(zap.String("saga_id", sc.SagaID))
		log.Info("creating order", zap.Uint("cart_id", req.CartID))

		var result *OrderResult
		err := uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			// FOR UPDATE锁定购物车行
			c, err := uc.cartRepo.LockByID(txCtx, req.CartID)
			if err != nil {
				return err
			}
			if c.IsEmpty() {
				return cart.ErrEmptyCart
			}

			// 计价 + 明细快照（价格以目录当前值锁定）
			var subtotal int64
			items := make([]order.Item, 0, len(c.Items))
			for _, ci := range c.Items {
				p, err := uc.productRepo.GetByID(txCtx, ci.ProductID)
				if err != nil {
					return err
				}

				unitPrice := p.Price
				variantName := ""
				if ci.VariantID != nil {
					v, err := uc.productRepo.GetVariant(txCtx, *ci.VariantID)
					if err != nil {
						return err
					}
					unitPrice = v.EffectivePrice(p)
					variantName = v.Name
				}

				lineTotal := unitPrice * int64(ci.Quantity)
				subtotal += lineTotal
				items = append(items, order.Item{
					ProductID:   ci.ProductID,
					VariantID:   ci.VariantID,
					ProductName: p.Name,
					ProductSKU:  p.SKU,
					VariantName: variantName,
					Quantity:    ci.Quantity,
					UnitPrice:   unitPrice,
					TotalPrice:  lineTotal,
				})
			}

			tax := roundedTax(subtotal)
			var shipping int64
			if subtotal < uc.cfg.FreeShippingThreshold {
				shipping = uc.cfg.FlatShippingFee
			}

			o := order.NewOrder(order.GenerateOrderNo(), req.UserID, req.ShippingAddress,
				items, subtotal, tax, shipping, req.CustomerNotes)
			if err := uc.orderRepo.Create(txCtx, o); err != nil {
				return err
			}

			result = &OrderResult{
				OrderID:    o.ID,
				OrderNo:    o.OrderNo,
				Total:      o.Total,
				ItemsCount: len(items),
				CartID:     req.CartID,
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		log.Info("order created",
			zap.Uint("order_id", result.OrderID),
			zap.String("order_no", result.OrderNo),
			zap.Int64("total", result.Total))
		return result, nil
	}
}

// cancelOrderCompensation 建单/确认的补偿：取消订单并留审计备注
// 审计备注带saga_id，排障时能追溯到具体的补偿来源
func (uc *UseCase) cancelOrderCompensation(reason string) func(ctx context.Context, sc *saga.Context) error {
	return func(ctx context.Context, sc *saga.Context) error {
		v, ok := sc.Result(stepCreateOrder)
		if !ok {
			return nil // 建单未完成，无需取消
		}
		orderResult := v.(*OrderResult)

		note := fmt.Sprintf("%s (saga_id: %s)", reason, sc.SagaID)
		return uc.orderRepo.Cancel(ctx, orderResult.OrderID, note)
	}
}

// =========================================
// S2 reserve_inventory 库存预留
// =========================================

// reserveInventory 在单个事务内预留全部明细的库存
//
// 并发正确性（防超卖）:
// 1. 每件商品SELECT ... FOR UPDATE锁定后检查库存再扣减
// 2. 全部扣减在一个事务内——部分预留对外不可见,失败整体回滚
//
// 幂等性:事务原子性保证重试时库存要么已全部扣过(步骤已成功,
// 不会再执行),要么完全没扣(上次回滚)；步骤结果已存在时直接no-op
func (uc *UseCase) reserveInventory() func(ctx context.Context, sc *saga.Context) (interface{}, error) {
	return func(ctx context.Context, sc *saga.Context) (interface{}, error) {
		// 幂等守卫:结果已记录说明库存已反映本订单的扣减
		if v, ok := sc.Result(stepReserveInventory); ok {
			return v, nil
		}

		log := logger.WithCorrelationID(ctx, uc.log).With(zap.String("saga_id", sc.SagaID))
		log.Info("reserving inventory")

		v, ok := sc.Result(stepCreateOrder)
		if !ok {
			return nil, fmt.Errorf("missing %s result", stepCreateOrder)
		}
		orderResult := v.(*OrderResult)

		var result *ReservationResult
		err := uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			// 锁定订单行（稳定读取明细，同时阻止并发补偿）
			o, err := uc.orderRepo.LockByID(txCtx, orderResult.OrderID)
			if err != nil {
				return err
			}

			reservations := make([]Reservation, 0, len(o.Items))
			for _, item := range o.Items {
				// FOR UPDATE锁定商品行,锁内检查+扣减
				p, err := uc.productRepo.LockByID(txCtx, item.ProductID)
				if err != nil {
					return err
				}
				if !p.TrackInventory {
					continue
				}
				if p.StockQuantity < item.Quantity {
					return apperrors.WrapWithCode(
						fmt.Errorf("product %q stock %d < required %d", p.Name, p.StockQuantity, item.Quantity),
						apperrors.ErrCodeInsufficientStock, "库存不足")
				}
				if err := uc.productRepo.AdjustStock(txCtx, item.ProductID, -item.Quantity); err != nil {
					return err
				}

				reservations = append(reservations, Reservation{
					ProductID:      item.ProductID,
					ProductName:    p.Name,
					Quantity:       item.Quantity,
					RemainingStock: p.StockQuantity - item.Quantity,
				})
			}

			result = &ReservationResult{Reservations: reservations}
			return nil
		})
		if err != nil {
			return nil, err
		}

		log.Info("inventory reserved", zap.Int("items", len(result.Reservations)))
		return result, nil
	}
}

// releaseInventory S2补偿：按记录的数量回补库存（单事务）
// 回补量来自预留记录而非重新计算——补偿只撤销自己做过的事
func (uc *UseCase) releaseInventory() func(ctx context.Context, sc *saga.Context) error {
	return func(ctx context.Context, sc *saga.Context) error {
		v, ok := sc.Result(stepReserveInventory)
		if !ok {
			return nil
		}
		result := v.(*ReservationResult)

		return uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			for _, r := range result.Reservations {
				if _, err := uc.productRepo.LockByID(txCtx, r.ProductID); err != nil {
					return err
				}
				if err := uc.productRepo.AdjustStock(txCtx, r.ProductID, r.Quantity); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// =========================================
// S3 check_fraud 风控评分
// =========================================

// fraudResponse 风控服务响应
type fraudResponse struct {
	RiskScore   float64  `json:"risk_score"`
	Action      string   `json:"action"`
	RiskFactors []string `json:"risk_factors"`
}

// checkFraud 调用风控服务评分
//
// 远程调用走网关弹性管道（熔断器+重试）。规则：
// - action=reject 或 risk_score≥0.9：拒绝交易（钱未动，先拒绝）
// - action=review：记录待人工复核，但放行（转化率优先的业务选择）
// - 服务不可用（熔断打开/重试耗尽）：按FraudFailOpen决定——
//   放行时记录降级标记（risk=0.5, review），这是显式的可用性取舍
func (uc *UseCase) checkFraud(req Request) func(ctx context.Context, sc *saga.Context) (interface{}, error) {
	return func(ctx context.Context, sc *saga.Context) (interface{}, error) {
		log := logger.WithCorrelationID(ctx, uc.log).With(zap.String("saga_id", sc.SagaID))

		v, ok := sc.Result(stepCreateOrder)
		if !ok {
			return nil, fmt.Errorf("missing %s result", stepCreateOrder)
		}
		orderResult := v.(*OrderResult)

		payload, err := json.Marshal(map[string]interface{}{
			"user_id":        req.UserID,
			"amount":         float64(orderResult.Total) / 100,
			"payment_method": req.PaymentMethod,
			"order_id":       orderResult.OrderID,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, "序列化风控请求失败")
		}

		result, err := uc.fraud.Call(ctx, http.MethodPost, "/analyze", "application/json", payload)
		if err != nil || result.Status != http.StatusOK {
			// 风控不可用（熔断打开/重试耗尽/异常状态码）
			if !uc.cfg.FraudFailOpen {
				if err == nil {
					err = fmt.Errorf("fraud service returned status %d", result.Status)
				}
				return nil, apperrors.WrapWithCode(err, apperrors.ErrCodeUpstreamError, "风控服务不可用")
			}

			log.Warn("fraud service unavailable, proceeding degraded", zap.Error(err))
			return &FraudResult{RiskScore: 0.5, Action: "review", Degraded: true}, nil
		}

		var fr fraudResponse
		if err := json.Unmarshal(result.Body, &fr); err != nil {
			return nil, apperrors.Wrap(err, "解析风控响应失败")
		}

		log.Info("fraud check result",
			zap.Float64("risk_score", fr.RiskScore),
			zap.String("action", fr.Action))

		if fr.Action == "reject" || fr.RiskScore >= 0.9 {
			return nil, apperrors.WrapWithCode(
				fmt.Errorf("fraud declined: action=%s risk_score=%.2f", fr.Action, fr.RiskScore),
				apperrors.ErrCodeFraudDeclined, "交易风险过高，已拒绝")
		}

		if fr.Action == "review" {
			// 记录待人工复核，放行
			log.Warn("transaction flagged for review", zap.Float64("risk_score", fr.RiskScore))
		}

		return &FraudResult{
			RiskScore:   fr.RiskScore,
			Action:      fr.Action,
			RiskFactors: fr.RiskFactors,
		}, nil
	}
}

// =========================================
// S4 process_payment 支付扣款
// =========================================

// processPayment 外部扣款 + 本地落库
//
// 事务边界（正确性关键）:
// 1. 先调用支付网关扣款——不持有任何数据库事务
// 2. 扣款成功后才开本地事务:Payment行 + 订单paid标记一起提交
// 3. 幂等键 saga_id+"-payment":重试时网关合并为同一笔扣款,
//    无论重试多少次,至多一次成功capture
func (uc *UseCase) processPayment(req Request) func(ctx context.Context, sc *saga.Context) (interface{}, error) {
	return func(ctx context.Context, sc *saga.Context) (interface{}, error) {
		log := logger.WithCorrelationID(ctx, uc.log).With(zap.String("saga_id", sc.SagaID))
		log.Info("processing payment")

		v, ok := sc.Result(stepCreateOrder)
		if !ok {
			return nil, fmt.Errorf("missing %s result", stepCreateOrder)
		}
		orderResult := v.(*OrderResult)

		capture, err := uc.gateway.Capture(ctx, payment.CaptureRequest{
			IdempotencyKey: sc.SagaID + "-payment",
			Amount:         orderResult.Total,
			Method:         req.PaymentMethod,
			MethodToken:    req.PaymentMethodToken,
			OrderNo:        orderResult.OrderNo,
			Metadata: map[string]string{
				"order_id": fmt.Sprintf("%d", orderResult.OrderID),
				"saga_id":  sc.SagaID,
			},
		})
		if err != nil {
			// ErrPaymentDeclined是业务拒绝(不重试);传输故障由步骤重试,
			// 幂等键保证重复capture合并
			log.Error("payment capture failed", zap.Error(err))
			return nil, err
		}

		// 扣款成功后的本地事务:支付记录 + 订单标记一起提交
		var paymentID uint
		err = uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			p := &payment.Payment{
				OrderID:          orderResult.OrderID,
				UserID:           req.UserID,
				Method:           req.PaymentMethod,
				Amount:           orderResult.Total,
				Status:           payment.StatusSucceeded,
				ExternalIntentID: capture.IntentID,
			}
			if err := uc.paymentRepo.CreatePayment(txCtx, p); err != nil {
				return err
			}
			paymentID = p.ID
			return uc.orderRepo.MarkPaid(txCtx, orderResult.OrderID)
		})
		if err != nil {
			// 钱已扣但本地落库失败:返回错误触发补偿(退款),幂等键兜底
			return nil, err
		}

		log.Info("payment processed",
			zap.Uint("payment_id", paymentID),
			zap.String("intent_id", capture.IntentID))
		return &PaymentResult{
			PaymentID: paymentID,
			IntentID:  capture.IntentID,
			Amount:    orderResult.Total,
			Status:    string(payment.StatusSucceeded),
		}, nil
	}
}

// refundPayment S4补偿：退款
//
// 退款同样走幂等键（saga_id+"-refund"）。退款失败不阻塞其他补偿——
// 错误返回后由引擎记录并投递对账队列，资金走带外对账
func (uc *UseCase) refundPayment() func(ctx context.Context, sc *saga.Context) error {
	return func(ctx context.Context, sc *saga.Context) error {
		v, ok := sc.Result(stepProcessPayment)
		if !ok {
			return nil // 未成功扣款，无需退款
		}
		paymentResult := v.(*PaymentResult)

		refund, err := uc.gateway.Refund(ctx, payment.RefundRequest{
			IdempotencyKey: sc.SagaID + "-refund",
			IntentID:       paymentResult.IntentID,
			Amount:         paymentResult.Amount,
			Reason:         "requested_by_customer",
		})
		if err != nil {
			return fmt.Errorf("refund failed for intent %s: %w", paymentResult.IntentID, err)
		}

		return uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			if err := uc.paymentRepo.MarkPaymentRefunded(txCtx, paymentResult.PaymentID); err != nil {
				return err
			}

			orderID := uint(0)
			if ov, ok := sc.Result(stepCreateOrder); ok {
				orderID = ov.(*OrderResult).OrderID
			}
			if err := uc.paymentRepo.CreateRefund(txCtx, &payment.Refund{
				PaymentID:        paymentResult.PaymentID,
				OrderID:          orderID,
				Amount:           paymentResult.Amount,
				Reason:           "other",
				Description:      fmt.Sprintf("saga compensation (saga_id: %s)", sc.SagaID),
				Status:           payment.StatusSucceeded,
				ExternalRefundID: refund.RefundID,
			}); err != nil {
				return err
			}
			if orderID != 0 {
				return uc.orderRepo.MarkRefunded(txCtx, orderID)
			}
			return nil
		})
	}
}

// =========================================
// S5 confirm_order 确认订单
// =========================================

// confirmOrder 在单个事务内:订单转processing + 清空购物车
//
// 补偿注意:取消订单但"不"恢复购物车——到这一步用户大概率已离开,
// 悄悄塞回购物车反而造成困扰(刻意的产品决策)
func (uc *UseCase) confirmOrder(req Request) func(ctx context.Context, sc *saga.Context) (interface{}, error) {
	return func(ctx context.Context, sc *saga.Context) (interface{}, error) {
		log := logger.WithCorrelationID(ctx, uc.log).With(zap.String("saga_id", sc.SagaID))
		log.Info("confirming order")

		v, ok := sc.Result(stepCreateOrder)
		if !ok {
			return nil, fmt.Errorf("missing %s result", stepCreateOrder)
		}
		orderResult := v.(*OrderResult)

		err := uc.txManager.Transaction(ctx, func(txCtx context.Context) error {
			if err := uc.orderRepo.UpdateStatus(txCtx, orderResult.OrderID, order.StatusProcessing); err != nil {
				return err
			}
			return uc.cartRepo.ClearItems(txCtx, req.CartID)
		})
		if err != nil {
			return nil, err
		}

		log.Info("order confirmed",
			zap.Uint("order_id", orderResult.OrderID),
			zap.String("order_no", orderResult.OrderNo))
		return map[string]interface{}{
			"order_id": orderResult.OrderID,
			"status":   string(order.StatusProcessing),
		}, nil
	}
}
