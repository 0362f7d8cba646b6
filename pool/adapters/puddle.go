package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/embedpool/pool"
)

// PuddlePool 把池化工作交给 puddle，实现与自管理连接池相同的 pool.Pool 接口。
// 与自管理连接池不同，连接数达到上限后 Acquire 会阻塞，直到有连接归还或上下文结束。
type PuddlePool struct {
	opts    *pool.PoolOptions
	factory pool.ConnectionFactory
	log     logrus.FieldLogger
	res     *puddle.Pool[pool.Connection]

	// 保护以下状态的互斥锁
	mu         sync.Mutex
	checkedOut map[pool.Connection]*puddle.Resource[pool.Connection]
	live       map[pool.Connection]struct{}
	closed     bool

	trace     atomic.Bool
	created   atomic.Int64
	destroyed atomic.Int64
	acquired  atomic.Int64
	released  atomic.Int64
	replaced  atomic.Int64
	failed    atomic.Int64
	createdAt time.Time
}

var _ pool.Pool = (*PuddlePool)(nil)

// NewPuddlePool 创建一个由 puddle 管理的连接池，选项与 pool.NewPool 相同。
// ReapInterval 不起作用，puddle 自身保证连接数不超过上限。
func NewPuddlePool(factory pool.ConnectionFactory, options ...pool.Option) (*PuddlePool, error) {
	opts := pool.DefaultOptions()
	for _, option := range options {
		option(opts)
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = pool.DefaultMaxConnections
	}

	p := &PuddlePool{
		opts:       opts,
		factory:    factory,
		log:        opts.Logger.WithField("pool_id", opts.PoolID),
		checkedOut: make(map[pool.Connection]*puddle.Resource[pool.Connection]),
		live:       make(map[pool.Connection]struct{}),
		createdAt:  time.Now(),
	}
	p.trace.Store(opts.Trace)

	res, err := puddle.NewPool(&puddle.Config[pool.Connection]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     int32(opts.MaxConnections),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create puddle pool: %w", err)
	}
	p.res = res

	p.log.WithField("max_connections", opts.MaxConnections).Debug("initializing puddle connection pool")

	if opts.Warmup {
		ctx := context.Background()
		for i := 0; i < opts.MaxConnections; i++ {
			if err := p.res.CreateResource(ctx); err != nil {
				p.log.WithError(err).Warn("failed to warm up connection")
			}
		}
		p.log.WithField("idle", p.res.Stat().IdleResources()).Debug("connection pool warmed up")
	}

	return p, nil
}

// ID 返回连接池标识
func (p *PuddlePool) ID() string {
	return p.opts.PoolID
}

// Acquire 从 puddle 取出一个连接，取到已关闭的连接时销毁它并重试
func (p *PuddlePool) Acquire(ctx context.Context) (pool.Connection, error) {
	for {
		if p.isClosed() {
			return nil, pool.ErrPoolClosed
		}

		r, err := p.res.Acquire(ctx)
		if err != nil {
			if errors.Is(err, puddle.ErrClosedPool) {
				return nil, pool.ErrPoolClosed
			}
			return nil, err
		}

		conn := r.Value()
		if conn.IsClosed() {
			p.discard(r)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			// Shutdown 已经开始
			p.discard(r)
			return nil, pool.ErrPoolClosed
		}
		p.checkedOut[conn] = r
		p.mu.Unlock()

		p.acquired.Add(1)
		p.notifyEvent(pool.EventAcquire, conn)
		p.traceStat("acquire", conn)

		return conn, nil
	}
}

// Release 把连接还给 puddle，已关闭的连接直接销毁
func (p *PuddlePool) Release(conn pool.Connection) error {
	if conn == nil {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pool.ErrPoolClosed
	}
	r, ok := p.checkedOut[conn]
	if ok {
		delete(p.checkedOut, conn)
	}
	_, isLive := p.live[conn]
	p.mu.Unlock()

	if !ok {
		if isLive {
			// 已经归还过了
			p.traceStat("release (already available)", conn)
			return nil
		}
		p.log.WithField("conn_id", conn.ID()).Warn("release of a connection this pool did not issue")
		return pool.ErrUnknownConnection
	}

	if conn.IsClosed() {
		p.discard(r)
	} else {
		r.Release()
		p.released.Add(1)
		p.notifyEvent(pool.EventRelease, conn)
	}
	p.traceStat("release", conn)

	return nil
}

// Trim 取出所有空闲连接，销毁其中已关闭的，其余放回，返回销毁的数量
func (p *PuddlePool) Trim() int {
	if p.isClosed() {
		return 0
	}

	removed := 0
	for _, r := range p.res.AcquireAllIdle() {
		if r.Value().IsClosed() {
			p.discard(r)
			removed++
			continue
		}
		r.ReleaseUnused()
	}

	if removed > 0 {
		// 把销毁的槽位补回来
		ctx := context.Background()
		for i := 0; i < removed; i++ {
			if err := p.res.CreateResource(ctx); err != nil {
				p.log.WithError(err).Warn("failed to replace closed connection")
				break
			}
			p.replaced.Add(1)
		}
	}

	stat := p.res.Stat()
	p.log.WithFields(logrus.Fields{
		"total":    stat.TotalResources(),
		"acquired": stat.AcquiredResources(),
		"idle":     stat.IdleResources(),
		"removed":  removed,
	}).Debug("reaper pass complete")

	return removed
}

// Shutdown 提交并销毁使用中的连接，然后关闭 puddle 池。
// puddle 的 Close 会等待所有连接销毁，ctx 结束时提前返回。
func (p *PuddlePool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pool.ErrPoolClosed
	}
	p.closed = true
	checkedOut := p.checkedOut
	p.checkedOut = make(map[pool.Connection]*puddle.Resource[pool.Connection])
	p.mu.Unlock()

	for conn, r := range checkedOut {
		if !conn.IsClosed() {
			if err := conn.Commit(); err != nil {
				p.log.WithError(err).WithField("conn_id", conn.ID()).Warn("commit before close failed")
			}
		}
		p.discard(r)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.res.Close()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.WithFields(logrus.Fields{
		"created": p.created.Load(),
		"closed":  p.destroyed.Load(),
	}).Info("connection pool shut down")

	return nil
}

// SetTrace 开启或关闭跟踪日志
func (p *PuddlePool) SetTrace(enabled bool) {
	p.trace.Store(enabled)
}

// Stats 返回 puddle 的统计信息和本连接池的计数器
func (p *PuddlePool) Stats() pool.Stats {
	stat := p.res.Stat()
	return pool.Stats{
		Available:      int(stat.IdleResources()),
		InUse:          int(stat.AcquiredResources()),
		Total:          int(stat.TotalResources()),
		MaxConnections: int(stat.MaxResources()),
		Created:        p.created.Load(),
		Closed:         p.destroyed.Load(),
		Acquired:       p.acquired.Load(),
		Released:       p.released.Load(),
		Replaced:       p.replaced.Load(),
		Errors:         p.failed.Load(),
		CreatedAt:      p.createdAt,
	}
}

func (p *PuddlePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// construct 是 puddle 的构造函数
func (p *PuddlePool) construct(ctx context.Context) (pool.Connection, error) {
	conn, err := p.factory.Create(ctx)
	if err != nil {
		p.failed.Add(1)
		p.log.WithError(err).Warn("failed to create connection")
		if !errors.Is(err, pool.ErrConnectFailure) {
			err = fmt.Errorf("%w: %w", pool.ErrConnectFailure, err)
		}
		return nil, err
	}

	p.mu.Lock()
	p.live[conn] = struct{}{}
	p.mu.Unlock()

	p.created.Add(1)
	p.notifyEvent(pool.EventNew, conn)
	return conn, nil
}

// discard 同步地把连接移出 puddle 并销毁。
// puddle 的 Destroy 在后台 goroutine 中析构，返回时连接仍计入 puddle 的总数。
func (p *PuddlePool) discard(r *puddle.Resource[pool.Connection]) {
	conn := r.Value()
	r.Hijack()
	p.destruct(conn)
}

// destruct 是 puddle 的析构函数，可能在 puddle 的后台 goroutine 中执行
func (p *PuddlePool) destruct(conn pool.Connection) {
	if !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			p.log.WithError(fmt.Errorf("%w: %w", pool.ErrCloseFailure, err)).
				WithField("conn_id", conn.ID()).Warn("failed to close connection")
		}
	}

	p.mu.Lock()
	delete(p.live, conn)
	p.mu.Unlock()

	p.destroyed.Add(1)
	p.notifyEvent(pool.EventClose, conn)
}

func (p *PuddlePool) traceStat(op string, conn pool.Connection) {
	if !p.trace.Load() {
		return
	}
	stat := p.res.Stat()
	p.log.WithFields(logrus.Fields{
		"conn_id":  conn.ID(),
		"total":    stat.TotalResources(),
		"acquired": stat.AcquiredResources(),
		"idle":     stat.IdleResources(),
	}).Debug(op)
}

func (p *PuddlePool) notifyEvent(event pool.Event, conn pool.Connection) {
	for _, listener := range p.opts.EventListeners {
		listener.OnEvent(event, conn)
	}
}
