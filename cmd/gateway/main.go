package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"
)

// main API Gateway启动入口
//
// 架构层次：
// HTTP请求 → Gin Router → Middleware（关联ID/认证/限流） →
// Handler → 弹性管道（熔断器+重试） → 下游服务
//                      └→ Checkout Saga → 本地存储/风控/支付网关
//
// 教学说明：
// 1. 依赖注入由Wire在编译期生成（InitializeApp，见wire_gen.go）
// 2. 优雅关闭：捕获SIGINT/SIGTERM，排空在途请求后释放资源
// 3. 进程内不持久化任何状态——熔断器和Saga注册表随进程重建
func main() {
	app, err := InitializeApp()
	if err != nil {
		log.Fatalf("❌ 应用初始化失败: %v", err)
	}

	// 捕获终止信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		app.Log.Sugar().Errorf("服务器异常退出: %v", err)
	}

	// 释放资源（刷追踪缓冲、关MQ连接、停清扫协程）
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
}
