//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试账号（由种子数据脚本写入）
const (
	testEmail    = "shopper@example.com"
	testPassword = "Password123"
)

// TestHealthEndpoints 健康检查端点（无需认证）
func TestHealthEndpoints(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestAuthFlow 登录 → 查询身份 → 登出 → Token失效
func TestAuthFlow(t *testing.T) {
	token := login(t, testEmail, testPassword)

	// 查询身份
	resp, body := doJSON(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Response
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, 0, envelope.Code)

	// 响应必须带correlation id
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	// 登出
	resp, _ = doJSON(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 登出后Token立即失效（吊销名单）
	resp, _ = doJSON(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestUnauthenticatedRejected 无Token访问业务API被拒
func TestUnauthenticatedRejected(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/api/v1/circuit-breakers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestCorrelationIDEcho 客户端自带correlation id原样回显
func TestCorrelationIDEcho(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, baseURL()+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Correlation-ID", "client-supplied-id-001")

	client := &http.Client{Timeout: Timeout}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "client-supplied-id-001", resp.Header.Get("X-Correlation-ID"))
}

// TestRateLimitHeaders 非豁免响应携带限流头
func TestRateLimitHeaders(t *testing.T) {
	token := login(t, testEmail, testPassword)

	resp, _ := doJSON(t, http.MethodGet, "/api/v1/circuit-breakers", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
}

// TestCircuitBreakerSnapshot 熔断器诊断接口
func TestCircuitBreakerSnapshot(t *testing.T) {
	token := login(t, testEmail, testPassword)

	resp, body := doJSON(t, http.MethodGet, "/api/v1/circuit-breakers", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Response
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, 0, envelope.Code)
}

// TestCheckoutHappyPath 端到端下单
// 前置：种子数据里cart_id=1属于测试用户且含现货商品
func TestCheckoutHappyPath(t *testing.T) {
	token := login(t, testEmail, testPassword)

	resp, body := doJSON(t, http.MethodPost, "/api/v1/checkout", token, map[string]interface{}{
		"cart_id": 1,
		"shipping_address": map[string]string{
			"name":          "Integration Test",
			"address_line1": "1 Test Ave",
			"city":          "Testville",
		},
		"payment_method":    "credit_card",
		"payment_method_id": "pm_test_visa",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode, "下单失败: %s", body)

	var envelope Response
	require.NoError(t, json.Unmarshal(body, &envelope))
	var data CheckoutData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))

	assert.NotZero(t, data.OrderID)
	assert.NotEmpty(t, data.OrderNumber)
	assert.Equal(t, "processing", data.Status)
	assert.NotEmpty(t, data.SagaID)

	// Saga状态在保留窗口内可查询
	resp, body = doJSON(t, http.MethodGet, "/api/v1/sagas/"+data.SagaID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &envelope))

	var snap struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &snap))
	assert.Equal(t, "completed", snap.Status)
}
