package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolClosed 表示连接池已关闭
	ErrPoolClosed = errors.New("pool is closed")

	// ErrConnectFailure 表示后端拒绝或无法建立连接
	ErrConnectFailure = errors.New("connect failure")

	// ErrCloseFailure 表示关闭物理连接失败，只出现在日志中
	ErrCloseFailure = errors.New("close failure")

	// ErrUnknownConnection 表示归还的连接不是由该连接池发出的
	ErrUnknownConnection = errors.New("connection not issued by this pool")
)

// ConnectionPool 是自管理的连接池。
// 空闲连接按栈的方式管理（最后归还的最先被复用），使用中的连接保存在集合里。
// 获取、归还、回收和关闭都在同一把锁下进行。
type ConnectionPool struct {
	// 池配置选项
	opts *PoolOptions

	// 连接工厂，用于创建新连接
	factory ConnectionFactory

	log logrus.FieldLogger

	// 保护以下共享状态的互斥锁
	mu        sync.Mutex
	available []Connection
	inUse     map[Connection]struct{}
	closed    bool
	stats     Stats

	trace  atomic.Bool
	reaper *reaper
}

var _ Pool = (*ConnectionPool)(nil)

// NewPool 创建一个新的连接池，预热连接并启动后台回收任务
func NewPool(factory ConnectionFactory, options ...Option) *ConnectionPool {
	opts := DefaultOptions()
	for _, option := range options {
		option(opts)
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}

	p := &ConnectionPool{
		opts:    opts,
		factory: factory,
		log:     opts.Logger.WithField("pool_id", opts.PoolID),
		inUse:   make(map[Connection]struct{}),
		stats: Stats{
			MaxConnections: opts.MaxConnections,
			CreatedAt:      time.Now(),
		},
	}
	p.trace.Store(opts.Trace)

	p.log.WithFields(logrus.Fields{
		"max_connections": opts.MaxConnections,
		"reap_interval":   opts.ReapInterval,
	}).Debug("initializing connection pool")

	if opts.Warmup {
		p.warmup(context.Background())
	}

	// 启动后台回收任务
	if opts.ReapInterval > 0 {
		p.reaper = startReaper(opts.ReapInterval, p.reap, p.log)
	}

	return p
}

// warmup 为每个配置的槽位预先打开一个连接，失败的槽位会在之后按需创建
func (p *ConnectionPool) warmup(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.opts.MaxConnections; i++ {
		conn, err := p.createLocked(ctx)
		if err != nil {
			continue
		}
		p.available = append(p.available, conn)
	}

	p.log.WithField("available", len(p.available)).Debug("connection pool warmed up")
}

// ID 返回连接池标识
func (p *ConnectionPool) ID() string {
	return p.opts.PoolID
}

// Acquire 取出一个连接。
// 有空闲连接时取最后归还的那一个；没有时直接创建一个新连接，
// 所以 Acquire 不会因为连接池已满而阻塞或失败。
func (p *ConnectionPool) Acquire(ctx context.Context) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	var conn Connection
	if n := len(p.available); n > 0 {
		conn = p.available[n-1]
		p.available[n-1] = nil
		p.available = p.available[:n-1]
	} else {
		created, err := p.createLocked(ctx)
		if err != nil {
			return nil, err
		}
		conn = created
	}

	p.inUse[conn] = struct{}{}
	p.stats.Acquired++
	p.notifyEvent(EventAcquire, conn)
	p.traceLocked("acquire", conn)

	return conn, nil
}

// Release 把连接放回空闲栈。
// 归还 nil 不做任何事；重复归还同一个连接不会产生重复的空闲项；
// 归还不是由本连接池发出的连接返回 ErrUnknownConnection。
func (p *ConnectionPool) Release(conn Connection) error {
	if conn == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	if _, ok := p.inUse[conn]; ok {
		delete(p.inUse, conn)
	} else if p.indexAvailableLocked(conn) >= 0 {
		// 已经归还过了
		p.traceLocked("release (already available)", conn)
		return nil
	} else {
		p.log.WithField("conn_id", conn.ID()).Warn("release of a connection this pool did not issue")
		return ErrUnknownConnection
	}

	p.available = append(p.available, conn)
	p.stats.Released++
	p.notifyEvent(EventRelease, conn)
	p.traceLocked("release", conn)

	return nil
}

// Trim 同步执行一次回收，返回被移除的连接数
func (p *ConnectionPool) Trim() int {
	return p.trim(context.Background())
}

// reap 是后台回收任务每次执行的内容
func (p *ConnectionPool) reap(ctx context.Context) {
	p.trim(ctx)
}

func (p *ConnectionPool) trim(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	removed := 0
	for len(p.available) > p.opts.MaxConnections {
		n := len(p.available)
		conn := p.available[n-1]
		p.available[n-1] = nil
		p.available = p.available[:n-1]

		if !conn.IsClosed() {
			p.closeLocked(conn)
			removed++
			continue
		}

		// 已关闭的连接用新连接替换，放到栈底，这样本轮会继续处理其余连接
		fresh, err := p.createLocked(ctx)
		if err != nil {
			p.log.WithField("conn_id", conn.ID()).Warn("dropped closed connection without replacement")
			removed++
			continue
		}
		p.available = append([]Connection{fresh}, p.available...)
		p.stats.Replaced++
		p.traceLocked("reaper replaced closed connection", fresh)
	}

	p.log.WithFields(logrus.Fields{
		"available": len(p.available),
		"in_use":    len(p.inUse),
		"removed":   removed,
	}).Debug("reaper pass complete")

	return removed
}

// Shutdown 关闭所有空闲连接，提交并关闭所有使用中的连接，然后停止回收任务。
// 单个连接的错误只记录日志，不会中断其余连接的关闭。
func (p *ConnectionPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true

	for _, conn := range p.available {
		if !conn.IsClosed() {
			p.closeLocked(conn)
		}
	}
	p.available = nil

	// 提交使用中的连接上未提交的工作，正在进行的事务会被强制提交
	for conn := range p.inUse {
		if conn.IsClosed() {
			continue
		}
		if err := conn.Commit(); err != nil {
			p.log.WithError(err).WithField("conn_id", conn.ID()).Warn("commit before close failed")
		}
		p.closeLocked(conn)
	}
	p.inUse = make(map[Connection]struct{})

	p.log.WithFields(logrus.Fields{
		"created": p.stats.Created,
		"closed":  p.stats.Closed,
	}).Info("connection pool shut down")
	p.mu.Unlock()

	return p.reaper.stop(ctx)
}

// SetTrace 开启或关闭跟踪日志
func (p *ConnectionPool) SetTrace(enabled bool) {
	p.trace.Store(enabled)
}

// Stats 返回池的当前统计信息
func (p *ConnectionPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Available = len(p.available)
	s.InUse = len(p.inUse)
	s.Total = s.Available + s.InUse
	s.ReaperRunning = p.reaper.running()
	return s
}

// StateOf 返回连接在本连接池中的状态，未被跟踪的连接视为已关闭
func (p *ConnectionPool) StateOf(conn Connection) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[conn]; ok {
		return StateInUse
	}
	if p.indexAvailableLocked(conn) >= 0 {
		return StateAvailable
	}
	return StateClosed
}

// createLocked 通过工厂创建一个新连接，调用方必须持有锁
func (p *ConnectionPool) createLocked(ctx context.Context) (Connection, error) {
	conn, err := p.factory.Create(ctx)
	if err != nil {
		p.stats.Errors++
		p.log.WithError(err).Warn("failed to create connection")
		if !errors.Is(err, ErrConnectFailure) {
			err = fmt.Errorf("%w: %w", ErrConnectFailure, err)
		}
		return nil, err
	}

	p.stats.Created++
	p.notifyEvent(EventNew, conn)
	return conn, nil
}

// closeLocked 关闭物理连接，失败时只记录日志
func (p *ConnectionPool) closeLocked(conn Connection) {
	if err := conn.Close(); err != nil {
		p.log.WithError(fmt.Errorf("%w: %w", ErrCloseFailure, err)).
			WithField("conn_id", conn.ID()).Warn("failed to close connection")
	}
	p.stats.Closed++
	p.notifyEvent(EventClose, conn)
}

func (p *ConnectionPool) indexAvailableLocked(conn Connection) int {
	for i := len(p.available) - 1; i >= 0; i-- {
		if p.available[i] == conn {
			return i
		}
	}
	return -1
}

func (p *ConnectionPool) traceLocked(op string, conn Connection) {
	if !p.trace.Load() {
		return
	}
	p.log.WithFields(logrus.Fields{
		"conn_id":   conn.ID(),
		"available": len(p.available),
		"in_use":    len(p.inUse),
	}).Debug(op)
}

// notifyEvent 通知所有事件监听器
func (p *ConnectionPool) notifyEvent(event Event, conn Connection) {
	for _, listener := range p.opts.EventListeners {
		listener.OnEvent(event, conn)
	}
}
