//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 教学说明：
// 1. Wire是Google开发的编译期依赖注入工具
// 2. 与运行时反射注入不同，Wire在编译期生成代码（wire_gen.go）
// 3. 优势：零运行时开销、类型安全、编译期检测循环依赖
//
// Wire工作流程：
// Step 1: 编写wire.go（本文件），定义Providers和Injector
// Step 2: 运行 `wire gen ./cmd/gateway`
// Step 3: Wire生成wire_gen.go，包含完整的依赖创建代码
// Step 4: main.go调用wire_gen.go中的InitializeApp()

package main

import (
	"github.com/google/wire"

	"github.com/ayo-anu/ecommerce-backend/internal/application/checkout"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/persistence/mysql"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/persistence/redis"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/handler"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/middleware"
)

// infrastructureSet 基础设施层依赖
// 包含：配置加载、日志、数据库、Redis、追踪
var infrastructureSet = wire.NewSet(
	config.Load,
	provideLogger,
	mysql.NewDB,
	redis.NewClient,
	provideTracing,
)

// repositorySet 仓储层依赖
var repositorySet = wire.NewSet(
	mysql.NewCartRepository,
	mysql.NewProductRepository,
	mysql.NewOrderRepository,
	mysql.NewPaymentRepository,
	mysql.NewUserRepository,
	mysql.NewTxManager,
	wire.Bind(new(checkout.TxManager), new(*mysql.TxManager)),
)

// resilienceSet 弹性组件依赖
// 包含：熔断器注册表、代理路由表、就绪探测、风控调用器
var resilienceSet = wire.NewSet(
	provideBreakerRegistry,
	provideProxyRouter,
	provideReadinessProber,
	provideFraudCaller,
)

// sagaSet Saga编排依赖
var sagaSet = wire.NewSet(
	provideSagaRegistry,
	provideSagaObserver,
	provideMQPublisher,
	provideReconcilePublisher,
	provideGatewayClient,
	provideCheckoutConfig,
	checkout.NewUseCase,
)

// middlewareSet 中间件依赖
var middlewareSet = wire.NewSet(
	provideJWTManager,
	provideSessionStore,
	provideRateLimitStore,
	provideRateLimiter,
	middleware.NewAuthMiddleware,
)

// handlerSet HTTP处理器依赖
var handlerSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewCheckoutHandler,
	handler.NewAdminHandler,
	provideHealthHandler,
	handler.NewProxyHandler,
)

// InitializeApp 初始化整个网关应用
// Wire会按依赖关系自动生成初始化代码（见wire_gen.go）
func InitializeApp() (*App, error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		resilienceSet,
		sagaSet,
		middlewareSet,
		handlerSet,
		newEngine,
		provideApp,
	)
	return nil, nil
}
