package saga

import (
	"sync"
	"time"
)

// Registry Saga注册表
//
// 设计说明：
// 1. 进程级可变map，读多写少，使用读写锁
// 2. 终态Saga保留一个短窗口供状态查询（RetentionPeriod），
//    之后由后台清扫协程回收——进程不持久化任何Saga状态，
//    重启后历史状态以下游存储为准
type Registry struct {
	mu        sync.RWMutex
	sagas     map[string]*Saga
	terminals map[string]time.Time // saga_id → 进入终态的时间

	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// DefaultRetention 终态Saga的默认保留时长
const DefaultRetention = 10 * time.Minute

// NewRegistry 创建Saga注册表
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		sagas:     make(map[string]*Saga),
		terminals: make(map[string]time.Time),
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Register 注册Saga
func (r *Registry) Register(s *Saga) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[s.ID()] = s
}

// MarkTerminal 标记Saga进入终态（开始保留倒计时）
func (r *Registry) MarkTerminal(sagaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sagas[sagaID]; ok {
		r.terminals[sagaID] = time.Now()
	}
}

// Get 查询Saga
func (r *Registry) Get(sagaID string) (*Saga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sagas[sagaID]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return s, nil
}

// Snapshots 所有已注册Saga的状态快照
func (r *Registry) Snapshots() []StatusSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]StatusSnapshot, 0, len(r.sagas))
	for _, s := range r.sagas {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// StartSweeper 启动后台清扫协程，定期回收过期的终态Saga
// 返回的函数用于停止清扫（进程退出时调用）
func (r *Registry) StartSweeper(interval time.Duration) func() {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()

	return func() {
		r.stopOnce.Do(func() { close(r.stopCh) })
	}
}

// sweep 回收超过保留时长的终态Saga
func (r *Registry) sweep() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, endedAt := range r.terminals {
		if now.Sub(endedAt) >= r.retention {
			delete(r.sagas, id)
			delete(r.terminals, id)
		}
	}
}
