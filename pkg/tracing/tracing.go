// Package tracing 提供基于OpenTelemetry的分布式追踪框架
//
// # 为什么需要分布式追踪？
//
// 一次下单请求跨越多个服务：
//
//	客户端 → API Gateway → 风控服务 / 支付网关 / 本地存储
//
// 当请求变慢或失败时，需要定位是哪一跳的问题。
//
// # 核心概念
//
// 1. **Trace（追踪）**：一个完整的请求链路，由TraceID标识
// 2. **Span（跨度）**：一个操作单元（一次代理调用、一个Saga步骤）
// 3. **SpanContext**：跨服务传递的元数据（traceparent头），
//    网关在每次出站请求时注入，下游自动关联到同一条链路
//
// # 与correlation_id的关系
//
// correlation_id是业务侧的请求标识（出现在日志、响应头、指标里），
// TraceID是追踪系统的标识。两者并行传播：correlation_id走
// X-Correlation-ID头，TraceID走W3C traceparent头。
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer 初始化全局Tracer Provider
//
// 参数：
//   - serviceName: 服务名称（在追踪UI中分组显示）
//   - endpoint: OTLP gRPC端点（如 localhost:4317）；为空时不导出，
//     仅保留上下文传播（开发环境无collector也能跑）
//
// 返回：
//   - shutdown: 关闭函数（程序退出时调用，确保数据刷新）
func InitTracer(serviceName, endpoint string) (func(context.Context) error, error) {
	// 无论是否导出，传播器都要设置——网关必须向下游注入traceparent
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("创建OTLP exporter失败: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("创建Resource失败: %w", err)
	}

	// 采样策略：开发环境全采样；生产环境应改用TraceIDRatioBased
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer 获取命名Tracer
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Inject 将当前Span上下文注入HTTP请求头（出站传播）
// 代理每次出站尝试前调用，下游据此关联到同一条Trace
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// Extract 从HTTP请求头提取Span上下文（入站传播）
func Extract(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}
