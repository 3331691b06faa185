package proxy

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
	"github.com/ayo-anu/ecommerce-backend/pkg/retry"
)

// Target 一个下游服务的代理目标
//
// 设计说明：
// 1. 每个下游一个Target：独立的熔断器、独立的连接池、独立的弹性配置
// 2. Target在进程启动时构建并缓存（拓扑静态，变更需重启）
// 3. AuthSecret注入X-Service-Auth头（零信任：下游只认内部密钥，
//    终端用户的Authorization永不外传）
type Target struct {
	ServiceName string
	BaseURL     string
	AuthSecret  string

	breaker       *circuitbreaker.CircuitBreaker
	client        *http.Client
	retryCfg      retry.Config
	retryStatuses map[int]struct{}
	attemptBudget time.Duration // 单次尝试的整体上限（connect+read+write）

	log *zap.Logger
}

// NewTarget 构建代理目标
func NewTarget(serviceName, baseURL, authSecret string, res config.ResilienceConfig,
	breakers *circuitbreaker.Registry, log *zap.Logger) *Target {

	// 缺失服务密钥：启动告警但不阻塞——下游侧会拒绝请求，
	// 责任边界清晰（网关可用性不依赖密钥配置完整）
	if authSecret == "" {
		log.Warn("service auth secret not configured, downstream will reject requests",
			zap.String("service", serviceName))
	}

	breaker := breakers.Get(serviceName, circuitbreaker.Config{
		FailureThreshold: res.FailureThreshold,
		SuccessThreshold: res.SuccessThreshold,
		WindowSize:       res.WindowSize,
		OpenTimeout:      res.OpenTimeout,
	})

	// 每个Target独立的连接池（cleanhttp：不共享全局Transport状态）
	// 连接池上限即该下游的在途请求上界，池满时的获取超时
	// 与503同等对待（可重试）
	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = (&net.Dialer{
		Timeout:   res.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = res.ReadTimeout
	// 每个下游的在途请求上界：池满时新请求阻塞等待连接，
	// 等待超过单次尝试预算按超时处理（可重试，与503同等对待）
	transport.MaxConnsPerHost = 64

	retryStatuses := make(map[int]struct{}, len(res.RetryStatuses))
	for _, s := range res.RetryStatuses {
		retryStatuses[s] = struct{}{}
	}

	return &Target{
		ServiceName: serviceName,
		BaseURL:     baseURL,
		AuthSecret:  authSecret,
		breaker:     breaker,
		client: &http.Client{
			Transport: transport,
			// 重定向原样透传给客户端，网关不跟随
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retryCfg: retry.Config{
			MaxRetries: res.MaxRetries,
			BaseDelay:  res.BaseDelay,
			MaxDelay:   res.MaxDelay,
			ExpBase:    res.ExpBase,
			Jitter:     res.Jitter,
		},
		retryStatuses: retryStatuses,
		attemptBudget: res.ConnectTimeout + res.ReadTimeout + res.WriteTimeout,
		log:           log.With(zap.String("service", serviceName)),
	}
}

// Breaker 该下游的熔断器（诊断接口使用）
func (t *Target) Breaker() *circuitbreaker.CircuitBreaker {
	return t.breaker
}

// isRetryStatus 状态码是否属于重试集合
func (t *Target) isRetryStatus(status int) bool {
	_, ok := t.retryStatuses[status]
	return ok
}
