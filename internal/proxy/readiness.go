package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// ReadinessProber 就绪探测器
//
// /readiness语义：所有必需下游在短超时内响应自身/health才算就绪；
// 任一失败返回503（编排系统据此摘除流量）。
// 探测走独立的短超时client，不经过熔断器——就绪检查
// 不应该消耗或污染业务熔断器的样本窗口。
type ReadinessProber struct {
	router  *Router
	timeout time.Duration
	client  *http.Client
}

// NewReadinessProber 创建就绪探测器
func NewReadinessProber(router *Router, timeout time.Duration) *ReadinessProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ReadinessProber{
		router:  router,
		timeout: timeout,
		client: &http.Client{
			Transport: cleanhttp.DefaultTransport(),
			Timeout:   timeout,
		},
	}
}

// Probe 并发探测所有下游的/health
// 返回：服务名 → 是否健康
func (p *ReadinessProber) Probe(ctx context.Context) map[string]bool {
	targets := p.router.Targets()
	results := make(map[string]bool, len(targets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, target := range targets {
		wg.Add(1)
		go func(name, baseURL string) {
			defer wg.Done()
			healthy := p.checkOne(ctx, baseURL)
			mu.Lock()
			results[name] = healthy
			mu.Unlock()
		}(name, target.BaseURL)
	}
	wg.Wait()

	return results
}

// checkOne 探测单个下游
func (p *ReadinessProber) checkOne(ctx context.Context, baseURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
