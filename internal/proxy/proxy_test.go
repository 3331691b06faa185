package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
	"github.com/ayo-anu/ecommerce-backend/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()
}

// fastResilience 测试用的快速弹性配置
func fastResilience() config.ResilienceConfig {
	return config.ResilienceConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		WindowSize:       100,
		OpenTimeout:      time.Minute,
		MaxRetries:       3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		ExpBase:          2.0,
		Jitter:           false,
		RetryStatuses:    []int{408, 429, 500, 502, 503, 504},
		ConnectTimeout:   200 * time.Millisecond,
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
	}
}

func newTestTarget(t *testing.T, baseURL string, res config.ResilienceConfig) *Target {
	t.Helper()
	breakers := circuitbreaker.NewRegistry(nil)
	return NewTarget("test-service", baseURL, "s2s-secret", res, breakers, zap.NewNop())
}

// proxyRequest 构造gin测试上下文并执行代理
func proxyRequest(t *testing.T, target *Target, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest(method, "http://gateway"+path, bytes.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req = req.WithContext(logger.NewContext(req.Context(), "cid-test-123"))
	c.Request = req
	c.Set("correlation_id", "cid-test-123")

	target.Proxy(c, path)
	return w
}

// TestProxy_HeaderStripAndInject 转发头处理
// 剥除Authorization/逐跳头，注入X-Correlation-ID与X-Service-Auth
func TestProxy_HeaderStripAndInject(t *testing.T) {
	var mu sync.Mutex
	var seen http.Header

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.Header.Clone()
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer downstream.Close()

	target := newTestTarget(t, downstream.URL, fastResilience())

	header := http.Header{}
	header.Set("Authorization", "Bearer user-token")
	header.Set("X-Custom", "keep-me")

	w := proxyRequest(t, target, http.MethodGet, "/items", nil, header)

	if w.Code != http.StatusOK {
		t.Fatalf("期望200，实际%d", w.Code)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen.Get("Authorization") != "" {
		t.Error("终端用户Authorization不应转发到下游")
	}
	if seen.Get("X-Service-Auth") != "s2s-secret" {
		t.Errorf("应注入X-Service-Auth，实际%q", seen.Get("X-Service-Auth"))
	}
	if seen.Get("X-Correlation-ID") != "cid-test-123" {
		t.Errorf("应注入X-Correlation-ID，实际%q", seen.Get("X-Correlation-ID"))
	}
	if seen.Get("X-Custom") != "keep-me" {
		t.Error("业务自定义头应该透传")
	}

	// 响应带网关标记
	if w.Header().Get("X-Proxied-By") != "gateway" {
		t.Error("响应应带X-Proxied-By: gateway")
	}
	if w.Header().Get("X-Correlation-ID") != "cid-test-123" {
		t.Error("响应应带X-Correlation-ID")
	}
}

// TestProxy_RetryThenSuccess 前两次503后恢复
func TestProxy_RetryThenSuccess(t *testing.T) {
	var attempts int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer downstream.Close()

	target := newTestTarget(t, downstream.URL, fastResilience())
	w := proxyRequest(t, target, http.MethodGet, "/x", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望重试后成功，实际%d", w.Code)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("期望3次尝试，实际%d次", got)
	}
}

// TestProxy_RetryBudgetAndSingleBreakerSample 重试预算与熔断采样
// MaxRetries=R时持续失败的下游恰好收到R+1次请求，
// 且整体结局只计一次熔断失败样本（不是每次尝试一次）
func TestProxy_RetryBudgetAndSingleBreakerSample(t *testing.T) {
	var attempts int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer downstream.Close()

	target := newTestTarget(t, downstream.URL, fastResilience())
	w := proxyRequest(t, target, http.MethodGet, "/x", nil, nil)

	// 重试集合状态码耗尽后透传最后一次下游响应
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("期望透传503，实际%d", w.Code)
	}
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Errorf("MaxRetries=3期望4次尝试，实际%d次", got)
	}

	snap := target.Breaker().Snapshot()
	if snap.RecentFailures != 1 {
		t.Errorf("整体结局应只计1次熔断失败样本，实际%d次", snap.RecentFailures)
	}
}

// TestProxy_CircuitOpensAndFailsFast 熔断打开后快速失败
func TestProxy_CircuitOpensAndFailsFast(t *testing.T) {
	var attempts int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer downstream.Close()

	res := fastResilience()
	res.FailureThreshold = 2
	res.MaxRetries = 0
	target := newTestTarget(t, downstream.URL, res)

	// 两次失败触发熔断
	proxyRequest(t, target, http.MethodGet, "/x", nil, nil)
	proxyRequest(t, target, http.MethodGet, "/x", nil, nil)

	if target.Breaker().State() != circuitbreaker.StateOpen {
		t.Fatalf("期望熔断OPEN，实际%s", target.Breaker().State())
	}

	before := atomic.LoadInt32(&attempts)
	w := proxyRequest(t, target, http.MethodGet, "/x", nil, nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("熔断打开期望503，实际%d", w.Code)
	}
	if atomic.LoadInt32(&attempts) != before {
		t.Error("熔断打开时不应接触下游")
	}

	// 结构化错误体：服务名 + correlation_id + 重试提示
	var body map[string]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("熔断响应应为JSON: %v", err)
	}
	errObj := body["error"]
	if errObj["type"] != "service_unavailable" {
		t.Errorf("期望type=service_unavailable，实际%v", errObj["type"])
	}
	if errObj["service"] != "test-service" {
		t.Errorf("期望service=test-service，实际%v", errObj["service"])
	}
	if errObj["correlation_id"] != "cid-test-123" {
		t.Errorf("熔断响应应带correlation_id，实际%v", errObj["correlation_id"])
	}
}

// TestProxy_BreakerIsolation 两个下游的熔断器互不影响
func TestProxy_BreakerIsolation(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	breakers := circuitbreaker.NewRegistry(nil)
	res := fastResilience()
	res.FailureThreshold = 1
	res.MaxRetries = 0

	targetX := NewTarget("service-x", failing.URL, "", res, breakers, zap.NewNop())
	targetY := NewTarget("service-y", healthy.URL, "", res, breakers, zap.NewNop())

	proxyRequest(t, targetX, http.MethodGet, "/x", nil, nil)

	if targetX.Breaker().State() != circuitbreaker.StateOpen {
		t.Errorf("service-x期望OPEN，实际%s", targetX.Breaker().State())
	}
	if targetY.Breaker().State() != circuitbreaker.StateClosed {
		t.Errorf("service-y不应受影响，期望CLOSED，实际%s", targetY.Breaker().State())
	}

	w := proxyRequest(t, targetY, http.MethodGet, "/y", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("健康下游应不受影响，实际%d", w.Code)
	}
}

// TestProxy_ConnectErrorMapsToBadGateway 连接失败映射502
func TestProxy_ConnectErrorMapsToBadGateway(t *testing.T) {
	res := fastResilience()
	res.MaxRetries = 1
	// 端口未监听
	target := newTestTarget(t, "http://127.0.0.1:1", res)

	w := proxyRequest(t, target, http.MethodGet, "/x", nil, nil)

	if w.Code != http.StatusBadGateway {
		t.Errorf("连接失败期望502，实际%d", w.Code)
	}
}

// TestProxy_DownstreamClientErrorPassedThrough 下游4xx原样透传且不重试
func TestProxy_DownstreamClientErrorPassedThrough(t *testing.T) {
	var attempts int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"no such thing"}`))
	}))
	defer downstream.Close()

	target := newTestTarget(t, downstream.URL, fastResilience())
	w := proxyRequest(t, target, http.MethodGet, "/missing", nil, nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("4xx应透传，实际%d", w.Code)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("4xx不应重试，期望1次尝试，实际%d次", got)
	}
	// 4xx是客户端问题不是下游故障，不计熔断失败
	if target.Breaker().Snapshot().RecentFailures != 0 {
		t.Error("4xx不应计入熔断失败样本")
	}
}

// TestTarget_Call 程序化调用走同一条弹性管道
func TestTarget_Call(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Correlation-ID") != "cid-call" {
			t.Error("程序化调用应注入correlation id")
		}
		w.Write([]byte(`{"risk_score":0.1,"action":"approve"}`))
	}))
	defer downstream.Close()

	target := newTestTarget(t, downstream.URL, fastResilience())

	ctx := logger.NewContext(t.Context(), "cid-call")
	result, err := target.Call(ctx, http.MethodPost, "/analyze", "application/json", []byte(`{}`))
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("期望200，实际%d", result.Status)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(result.Body, &parsed); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if parsed["action"] != "approve" {
		t.Errorf("期望action=approve，实际%v", parsed["action"])
	}
}

// TestRouter_LongestPrefixMatch 最长前缀匹配与边界
func TestRouter_LongestPrefixMatch(t *testing.T) {
	cfg := &config.Config{Resilience: fastResilience()}
	cfg.Services.Search = config.ServiceEndpoint{URL: "http://search:8002"}
	cfg.Services.Fraud = config.ServiceEndpoint{URL: "http://fraud:8005"}

	router := NewRouter(cfg, circuitbreaker.NewRegistry(nil), zap.NewNop())

	target, rest, ok := router.Match("/api/v1/search/products")
	if !ok || target.ServiceName != "search-service" {
		t.Fatalf("期望匹配search-service，实际ok=%v", ok)
	}
	if rest != "/products" {
		t.Errorf("期望去前缀路径/products，实际%q", rest)
	}

	// 未配置的服务不匹配
	if _, _, ok := router.Match("/api/v1/vision/detect"); ok {
		t.Error("未配置URL的服务不应匹配")
	}

	// 前缀必须在路径段边界
	if _, _, ok := router.Match("/api/v1/searchx/oops"); ok {
		t.Error("非路径段边界的前缀不应匹配")
	}

	// 无匹配
	if _, _, ok := router.Match("/api/v1/unknown"); ok {
		t.Error("未知路径不应匹配")
	}
}
