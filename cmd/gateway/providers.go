package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/application/checkout"
	domainpayment "github.com/ayo-anu/ecommerce-backend/internal/domain/payment"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/payment"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/persistence/redis"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/handler"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/middleware"
	"github.com/ayo-anu/ecommerce-backend/internal/proxy"
	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
	"github.com/ayo-anu/ecommerce-backend/pkg/jwt"
	"github.com/ayo-anu/ecommerce-backend/pkg/logger"
	"github.com/ayo-anu/ecommerce-backend/pkg/metrics"
	"github.com/ayo-anu/ecommerce-backend/pkg/mq"
	"github.com/ayo-anu/ecommerce-backend/pkg/saga"
	"github.com/ayo-anu/ecommerce-backend/pkg/tracing"
)

// 自定义Provider
// 教学说明：
// 有些依赖的构造参数需要从Config中提取，或需要绑定接口类型，
// Wire无法自动推导，这里手动编写Provider函数

// tracingShutdown 追踪关闭函数（命名类型便于Wire识别）
type tracingShutdown func(context.Context) error

// provideLogger 从配置创建zap Logger
func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
}

// provideJWTManager 从配置创建JWT管理器
func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Algorithm, cfg.JWT.AccessTokenExpire())
}

// provideSessionStore 从Redis客户端创建会话存储
func provideSessionStore(client *goredis.Client) *redis.SessionStore {
	return redis.NewSessionStore(client)
}

// provideRateLimitStore 从Redis客户端创建限流计数存储
func provideRateLimitStore(client *goredis.Client) *redis.RateLimitStore {
	return redis.NewRateLimitStore(client)
}

// provideRateLimiter 创建限流中间件
func provideRateLimiter(store *redis.RateLimitStore, cfg *config.Config, log *zap.Logger) *middleware.RateLimiter {
	return middleware.NewRateLimiter(store, cfg.RateLimit.PerMinute, log)
}

// provideBreakerRegistry 创建熔断器注册表
// 状态变化回调接入Prometheus gauge（这里也完成指标初始化）
func provideBreakerRegistry() *circuitbreaker.Registry {
	metrics.InitMetrics()
	return circuitbreaker.NewRegistry(metrics.BreakerStateChanged)
}

// provideProxyRouter 构建路由表与所有代理目标
func provideProxyRouter(cfg *config.Config, breakers *circuitbreaker.Registry, log *zap.Logger) *proxy.Router {
	return proxy.NewRouter(cfg, breakers, log)
}

// provideReadinessProber 创建就绪探测器
func provideReadinessProber(router *proxy.Router) *proxy.ReadinessProber {
	return proxy.NewReadinessProber(router, 3*time.Second)
}

// unavailableFraud 风控目标未配置时的兜底实现
// 永远返回错误——触发Saga的fail-open/fail-closed策略
type unavailableFraud struct{}

func (unavailableFraud) Call(ctx context.Context, method, path, contentType string, body []byte) (*proxy.Result, error) {
	return nil, context.DeadlineExceeded
}

// provideFraudCaller 风控服务调用器（走网关弹性管道）
func provideFraudCaller(router *proxy.Router) checkout.FraudCaller {
	if target, ok := router.Target("fraud-service"); ok {
		return target
	}
	return unavailableFraud{}
}

// provideGatewayClient 支付网关客户端
func provideGatewayClient(cfg *config.Config) domainpayment.GatewayClient {
	return payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
}

// provideMQPublisher 对账队列发布者（未配置MQ时返回nil，仅日志兜底）
func provideMQPublisher(cfg *config.Config, log *zap.Logger) *mq.Publisher {
	if cfg.MQ.URL == "" {
		log.Warn("mq url not configured, compensation failures will only be logged")
		return nil
	}

	exchange := cfg.MQ.Exchange
	if exchange == "" {
		exchange = "gateway.reconciliation"
	}
	pub, err := mq.NewPublisher(cfg.MQ.URL, exchange, "topic")
	if err != nil {
		// 对账队列是兜底通道，不阻塞网关启动
		log.Error("failed to connect mq, compensation failures will only be logged", zap.Error(err))
		return nil
	}
	return pub
}

// provideReconcilePublisher 接口绑定（nil publisher → nil接口）
func provideReconcilePublisher(pub *mq.Publisher) checkout.ReconcilePublisher {
	if pub == nil {
		return nil
	}
	return pub
}

// provideSagaRegistry 创建Saga注册表
func provideSagaRegistry() *saga.Registry {
	return saga.NewRegistry(saga.DefaultRetention)
}

// provideSagaObserver Saga指标观察者
func provideSagaObserver() saga.Observer {
	return metrics.SagaObserver{}
}

// provideCheckoutConfig 提取下单业务配置
func provideCheckoutConfig(cfg *config.Config) config.CheckoutConfig {
	return cfg.Checkout
}

// provideTracing 初始化分布式追踪
func provideTracing(cfg *config.Config) (tracingShutdown, error) {
	shutdown, err := tracing.InitTracer("api-gateway", cfg.Tracing.Endpoint)
	if err != nil {
		return nil, err
	}
	return tracingShutdown(shutdown), nil
}

// provideHealthHandler 创建健康检查处理器
func provideHealthHandler(prober *proxy.ReadinessProber) *handler.HealthHandler {
	return handler.NewHealthHandler(prober, version)
}

// provideApp 组装App（启动Saga注册表清扫协程）
func provideApp(
	engine *gin.Engine,
	cfg *config.Config,
	log *zap.Logger,
	sagaRegistry *saga.Registry,
	mqPublisher *mq.Publisher,
	shutdown tracingShutdown,
) *App {
	return &App{
		Engine:          engine,
		Config:          cfg,
		Log:             log,
		stopSweeper:     sagaRegistry.StartSweeper(time.Minute),
		shutdownTracing: shutdown,
		mqPublisher:     mqPublisher,
	}
}
