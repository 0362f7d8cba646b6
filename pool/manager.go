package pool

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrPoolNotFound 表示请求的连接池不存在
	ErrPoolNotFound = errors.New("pool not found")

	// ErrPoolExists 表示连接池已存在
	ErrPoolExists = errors.New("pool already exists")
)

// Registry 按连接池标识保存连接池，本身不包含任何池化逻辑。
// 由调用方显式创建并传递，没有全局实例。
type Registry struct {
	pools map[string]Pool
	mu    sync.RWMutex
}

var _ PoolManager = (*Registry)(nil)

// NewRegistry 创建一个空的连接池注册表
func NewRegistry() *Registry {
	return &Registry{
		pools: make(map[string]Pool),
	}
}

// Get 获取指定标识的连接池
func (r *Registry) Get(id string) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// Register 注册一个连接池
func (r *Registry) Register(id string, p Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[id]; ok {
		return ErrPoolExists
	}
	r.pools[id] = p
	return nil
}

// GetOrCreate 返回已注册的连接池，不存在时调用 create 创建并注册
func (r *Registry) GetOrCreate(id string, create func() (Pool, error)) (Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 获取写锁后再检查一次
	if p, ok = r.pools[id]; ok {
		return p, nil
	}

	p, err := create()
	if err != nil {
		return nil, err
	}
	r.pools[id] = p
	return p, nil
}

// Remove 移除连接池，但不关闭它
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[id]; !ok {
		return ErrPoolNotFound
	}
	delete(r.pools, id)
	return nil
}

// IDs 返回排序后的所有连接池标识
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown 关闭并移除所有连接池，返回遇到的所有错误
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]Pool)
	r.mu.Unlock()

	var errs []error
	for _, p := range pools {
		if err := p.Shutdown(ctx); err != nil && !errors.Is(err, ErrPoolClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats 返回所有连接池的统计信息
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Stats, len(r.pools))
	for id, p := range r.pools {
		result[id] = p.Stats()
	}
	return result
}
