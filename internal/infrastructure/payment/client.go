package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	domain "github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// Client 支付网关HTTP客户端
//
// 设计说明：
// 1. 每次请求携带Idempotency-Key头——网关把相同键的重复提交
//    视为同一笔逻辑操作，Saga重试不会重复扣款/退款
// 2. 支付网关是第三方，不走内部代理/熔断器：它有独立SLA，
//    失败语义（卡拒绝 vs 网络故障）由本客户端区分后交给Saga
// 3. Transport使用cleanhttp（独立连接池，不与默认client共享状态）
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient 创建支付网关客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   timeout,
		},
	}
}

// captureRequest 扣款请求体（网关协议）
type captureRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Method      string            `json:"payment_method"`
	MethodToken string            `json:"payment_method_id,omitempty"`
	OrderNo     string            `json:"order_no"`
	Confirm     bool              `json:"confirm"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// gatewayResponse 网关响应体
type gatewayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Capture 发起扣款
func (c *Client) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
	body := captureRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		MethodToken: req.MethodToken,
		OrderNo:     req.OrderNo,
		Confirm:     true,
		Metadata:    req.Metadata,
	}
	if body.Currency == "" {
		body.Currency = "usd"
	}

	resp, err := c.post(ctx, "/v1/payment_intents", req.IdempotencyKey, body)
	if err != nil {
		return nil, err
	}
	return &domain.CaptureResult{IntentID: resp.ID, Status: resp.Status}, nil
}

// refundRequest 退款请求体
type refundRequest struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

// Refund 发起退款（补偿路径）
func (c *Client) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	body := refundRequest{
		PaymentIntent: req.IntentID,
		Amount:        req.Amount,
		Reason:        req.Reason,
	}

	resp, err := c.post(ctx, "/v1/refunds", req.IdempotencyKey, body)
	if err != nil {
		return nil, err
	}
	return &domain.RefundResult{RefundID: resp.ID, Status: resp.Status}, nil
}

// post 发起网关请求并解析响应
//
// 错误分类（Saga重试语义的依据）：
// - 402 / card_error → ErrPaymentDeclined（终止性，不重试）
// - 其他4xx → 终止性业务错误
// - 网络错误 / 5xx → 普通error（可重试，幂等键兜底）
func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload interface{}) (*gatewayResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "序列化支付请求失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrap(err, "构造支付请求失败")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("支付网关请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取支付网关响应失败: %w", err)
	}

	var resp gatewayResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("解析支付网关响应失败: %w", err)
		}
	}

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return &resp, nil
	case httpResp.StatusCode == http.StatusPaymentRequired || resp.Error.Type == "card_error":
		// 卡被拒：业务性拒绝，Saga立即失败并补偿，不重试
		return nil, domain.ErrPaymentDeclined
	case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
		return nil, apperrors.WrapWithCode(
			fmt.Errorf("payment gateway %d: %s", httpResp.StatusCode, resp.Error.Message),
			apperrors.ErrCodePaymentDeclined, "支付请求被拒绝")
	default:
		// 5xx：网关侧故障，可重试（幂等键保证At-Most-One扣款）
		return nil, fmt.Errorf("payment gateway %d: %s", httpResp.StatusCode, resp.Error.Message)
	}
}
