package proxy

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/config"
	"github.com/ayo-anu/ecommerce-backend/pkg/circuitbreaker"
)

// Router 网关路由表
//
// 设计说明：
// 1. 静态表：(路由前缀 → 下游服务)在进程启动时确定，变更需重启。
//    刻意不做动态路由——服务拓扑变化很少，而热更新会让
//    熔断器状态的归属推理变得复杂
// 2. 最长前缀匹配选择Target；无匹配返回404
type Router struct {
	routes  []route // 按前缀长度降序
	targets map[string]*Target
}

// route 一条路由规则
type route struct {
	prefix  string
	service string
}

// routeTable 路由前缀 → 服务名（固定拓扑）
var routeTable = []route{
	{prefix: "/api/v1/backend", service: "backend"},
	{prefix: "/api/v1/recommendations", service: "recommendation-service"},
	{prefix: "/api/v1/search", service: "search-service"},
	{prefix: "/api/v1/pricing", service: "pricing-service"},
	{prefix: "/api/v1/chat", service: "chatbot-service"},
	{prefix: "/api/v1/fraud", service: "fraud-service"},
	{prefix: "/api/v1/forecast", service: "forecasting-service"},
	{prefix: "/api/v1/vision", service: "vision-service"},
}

// NewRouter 从配置构建路由表和所有代理目标
func NewRouter(cfg *config.Config, breakers *circuitbreaker.Registry, log *zap.Logger) *Router {
	endpoints := map[string]config.ServiceEndpoint{
		"backend":                cfg.Services.Backend,
		"recommendation-service": cfg.Services.Recommendations,
		"search-service":         cfg.Services.Search,
		"pricing-service":        cfg.Services.Pricing,
		"chatbot-service":        cfg.Services.Chat,
		"fraud-service":          cfg.Services.Fraud,
		"forecasting-service":    cfg.Services.Forecast,
		"vision-service":         cfg.Services.Vision,
	}

	targets := make(map[string]*Target, len(endpoints))
	for name, ep := range endpoints {
		if ep.URL == "" {
			log.Warn("downstream service URL not configured, route disabled",
				zap.String("service", name))
			continue
		}
		targets[name] = NewTarget(name, strings.TrimRight(ep.URL, "/"), ep.AuthSecret,
			cfg.Resilience, breakers, log)
	}

	// 最长前缀优先
	routes := append([]route(nil), routeTable...)
	sort.Slice(routes, func(i, j int) bool {
		return len(routes[i].prefix) > len(routes[j].prefix)
	})

	return &Router{routes: routes, targets: targets}
}

// Match 最长前缀匹配
//
// 返回：
//
//	target: 匹配的代理目标
//	rest: 去除前缀后的下游路径（以/开头）
//	ok: 是否匹配且服务已配置
func (r *Router) Match(path string) (target *Target, rest string, ok bool) {
	for _, rt := range r.routes {
		if !strings.HasPrefix(path, rt.prefix) {
			continue
		}
		// 前缀必须在路径段边界上（/api/v1/search不匹配/api/v1/searchx）
		rest = strings.TrimPrefix(path, rt.prefix)
		if rest != "" && !strings.HasPrefix(rest, "/") {
			continue
		}
		if rest == "" {
			rest = "/"
		}
		t, exists := r.targets[rt.service]
		if !exists {
			return nil, "", false
		}
		return t, rest, true
	}
	return nil, "", false
}

// Target 按服务名查找代理目标
func (r *Router) Target(service string) (*Target, bool) {
	t, ok := r.targets[service]
	return t, ok
}

// Targets 所有已配置的代理目标
func (r *Router) Targets() map[string]*Target {
	return r.targets
}
