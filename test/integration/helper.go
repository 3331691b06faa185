//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 教学说明：集成测试辅助工具
// 这些测试对着一个"真的在跑"的网关进程执行（go test -tags integration），
// 依赖本地MySQL/Redis和至少一个可用的下游桩服务

// BaseURL 网关基础URL（可用GATEWAY_TEST_URL覆盖）
func baseURL() string {
	if v := os.Getenv("GATEWAY_TEST_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// Timeout HTTP请求超时时间
const Timeout = 10 * time.Second

// Response 统一响应结构
type Response struct {
	Code          int             `json:"code"`
	Message       string          `json:"message"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlation_id"`
}

// LoginData 登录响应数据
type LoginData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CheckoutData 下单响应数据
type CheckoutData struct {
	OrderID     uint    `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
	Status      string  `json:"status"`
	SagaID      string  `json:"saga_id"`
}

// doJSON 发起JSON请求
func doJSON(t *testing.T, method, path, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL()+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: Timeout}
	resp, err := client.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	return resp, respBody
}

// login 登录并返回access token
func login(t *testing.T, email, password string) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "登录失败: %s", body)

	var data LoginData
	require.NoError(t, json.Unmarshal(body, &data))
	require.NotEmpty(t, data.AccessToken)
	return data.AccessToken
}
