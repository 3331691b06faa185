package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry 熔断器注册表
//
// 设计说明：
// 1. 每个下游服务一个熔断器，按服务名索引
// 2. 进程级单例，显式构造后注入各组件（不使用包级全局变量）
// 3. 读多写少（首次创建后只有查询），使用读写锁
// 4. 各熔断器相互独立：服务X的故障不影响服务Y的熔断器状态
type Registry struct {
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker
	onStateChange func(name string, from, to State)
}

// NewRegistry 创建熔断器注册表
//
// 参数：
//
//	onStateChange: 所有熔断器共享的状态变化回调（通常用于更新指标）
func NewRegistry(onStateChange func(name string, from, to State)) *Registry {
	if onStateChange == nil {
		onStateChange = func(name string, from, to State) {}
	}
	return &Registry{
		breakers:      make(map[string]*CircuitBreaker),
		onStateChange: onStateChange,
	}
}

// Get 获取或创建熔断器
// 首次调用时用cfg创建，之后的调用忽略cfg（配置进程内不变）
func (r *Registry) Get(name string, cfg Config) *CircuitBreaker {
	// 快路径：读锁查询
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	// 慢路径：写锁创建（双重检查，避免并发重复创建）
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb = New(name, cfg)
	cb.SetStateChangeCallback(r.onStateChange)
	r.breakers[name] = cb
	return cb
}

// Lookup 查询熔断器（不创建）
func (r *Registry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Snapshots 所有熔断器的状态快照（按名称排序，便于诊断输出稳定）
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, cb := range r.breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Reset 手动重置指定熔断器，返回是否存在
func (r *Registry) Reset(name string) bool {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}
