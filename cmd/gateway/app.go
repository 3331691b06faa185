package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/handler"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/middleware"
	"github.com/ayo-anu/ecommerce-backend/pkg/mq"
)

// version 网关版本（构建时可通过-ldflags覆盖）
var version = "1.0.0"

// App 组装完成的网关应用
// 持有需要显式释放的资源，Shutdown时统一清理
type App struct {
	Engine *gin.Engine
	Config *config.Config
	Log    *zap.Logger

	stopSweeper     func()
	shutdownTracing func(context.Context) error
	mqPublisher     *mq.Publisher
}

// Shutdown 释放应用资源（HTTP服务器停止后调用）
func (a *App) Shutdown(ctx context.Context) {
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	if a.mqPublisher != nil {
		if err := a.mqPublisher.Close(); err != nil {
			a.Log.Warn("failed to close mq publisher", zap.Error(err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = a.Log.Sync()
}

// newEngine 创建并配置Gin引擎（全部路由在此注册）
//
// 中间件顺序（对语义有要求）：
//
//	Recovery → Correlation（生成ID+入站deadline） → 访问日志 → 指标 → CORS
//	→ [按路由组] 认证 → 限流
//
// 豁免规则：/、/health、/readiness、/metrics不认证、不限流
// （注册在豁免组，不挂认证/限流中间件）
func newEngine(
	cfg *config.Config,
	log *zap.Logger,
	authHandler *handler.AuthHandler,
	checkoutHandler *handler.CheckoutHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	proxyHandler *handler.ProxyHandler,
	authMW *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Correlation(cfg.Server.IngressTimeout))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	// 豁免端点：存活/就绪/指标（K8s与Prometheus访问，无Token）
	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)
	r.GET("/readiness", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 认证端点（登录本身按客户端IP限流，防爆破）
	auth := r.Group("/auth")
	auth.Use(rateLimiter.Limit())
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authMW.RequireAuth(), authHandler.Logout)
		auth.GET("/me", authMW.RequireAuth(), authHandler.Me)
	}

	// 业务API：认证 → 限流（按用户ID计数）
	api := r.Group("/api/v1")
	api.Use(authMW.RequireAuth(), rateLimiter.Limit())
	{
		// 下单Saga
		api.POST("/checkout", checkoutHandler.Checkout)
		api.GET("/sagas", checkoutHandler.SagaList)
		api.GET("/sagas/:id", checkoutHandler.SagaStatus)

		// 熔断器诊断与干预（重置需要admin scope）
		api.GET("/circuit-breakers", adminHandler.CircuitBreakers)
		api.POST("/circuit-breakers/:service/reset",
			authMW.RequireScope("admin"), adminHandler.ResetCircuitBreaker)

		// 下游服务代理（每个前缀一条ANY路由，命中后走弹性管道）
		for _, prefix := range []string{
			"/backend", "/recommendations", "/search", "/pricing",
			"/chat", "/fraud", "/forecast", "/vision",
		} {
			api.Any(prefix+"/*path", proxyHandler.Handle)
		}
	}

	return r
}

// Run 启动HTTP服务器（阻塞直到ctx取消，然后优雅关闭）
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Engine,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("gateway listening", zap.String("addr", srv.Addr))
		fmt.Printf("🚀 API Gateway v%s 启动: http://%s\n", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 优雅关闭：停止接收新请求，给在途请求一个排空窗口。
	// 已过支付点的Saga与请求取消解耦，不受关闭影响（引擎保证）
	a.Log.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.WriteTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
