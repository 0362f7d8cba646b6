package poolservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/embedpool/pool"
	"github.com/fyerfyer/embedpool/pool/adapters"
	"github.com/fyerfyer/embedpool/pool/factory"
)

// InMemoryService 在进程内管理连接池和通过服务取出的连接
type InMemoryService struct {
	reg  *pool.Registry
	opts []factory.Option
	log  logrus.FieldLogger

	// 连接池标识到元数据的映射
	entries map[string]*poolEntry
	// 保护映射的互斥锁
	mu sync.RWMutex
}

// poolEntry 包含连接池的元数据和服务持有的连接
type poolEntry struct {
	source   string
	openedAt time.Time
	handles  map[string]pool.Connection
}

// trimmer 由支持手动回收的连接池实现
type trimmer interface {
	Trim() int
}

// NewInMemoryService 创建一个新的内存连接池服务，opts 会传给每次 factory.Open
func NewInMemoryService(logger logrus.FieldLogger, opts ...factory.Option) *InMemoryService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InMemoryService{
		reg:     pool.NewRegistry(),
		opts:    append([]factory.Option{factory.WithLogger(logger)}, opts...),
		log:     logger,
		entries: make(map[string]*poolEntry),
	}
}

// OpenPool 从配置来源打开连接池
func (s *InMemoryService) OpenPool(ctx context.Context, source string) (PoolInfo, error) {
	p, err := factory.Open(ctx, s.reg, source, s.opts...)
	if err != nil {
		return PoolInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[p.ID()]
	if !exists {
		entry = &poolEntry{
			source:   source,
			openedAt: time.Now(),
			handles:  make(map[string]pool.Connection),
		}
		s.entries[p.ID()] = entry
	}

	return s.infoLocked(p, entry), nil
}

// ListPools 列出所有连接池，按标识排序
func (s *InMemoryService) ListPools() []PoolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]PoolInfo, 0, len(s.entries))
	for _, id := range s.reg.IDs() {
		p, err := s.reg.Get(id)
		if err != nil {
			continue
		}
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		result = append(result, s.infoLocked(p, entry))
	}

	return result
}

// Acquire 取出一个连接并由服务持有
func (s *InMemoryService) Acquire(ctx context.Context, poolID string) (string, error) {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return "", err
	}

	conn, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[poolID]
	if !ok {
		// 连接池在取连接期间被关闭了
		_ = p.Release(conn)
		return "", pool.ErrPoolNotFound
	}
	entry.handles[conn.ID()] = conn

	return conn.ID(), nil
}

// Release 归还服务持有的连接
func (s *InMemoryService) Release(poolID, connID string) error {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	entry, ok := s.entries[poolID]
	if !ok {
		s.mu.Unlock()
		return pool.ErrPoolNotFound
	}
	conn, ok := entry.handles[connID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	delete(entry.handles, connID)
	s.mu.Unlock()

	return p.Release(conn)
}

// Exec 执行不返回行的语句，驱动无法报告受影响的行数时返回 -1
func (s *InMemoryService) Exec(ctx context.Context, poolID, query string) (int64, error) {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return 0, err
	}

	res, err := adapters.NewDatabase(p).Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		s.log.WithError(err).WithField("pool_id", poolID).Debug("rows affected not available")
		return -1, nil
	}
	return n, nil
}

// Query 执行查询，所有值都转换为字符串
func (s *InMemoryService) Query(ctx context.Context, poolID, query string) (QueryResult, error) {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return QueryResult{}, err
	}

	var result QueryResult
	err = adapters.NewDatabase(p).Query(ctx, query, nil, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		result.Columns = cols

		for rows.Next() {
			values := make([]sql.NullString, len(cols))
			dest := make([]interface{}, len(cols))
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return err
			}

			row := make([]string, len(cols))
			for i, v := range values {
				if v.Valid {
					row[i] = v.String
				} else {
					row[i] = "NULL"
				}
			}
			result.Rows = append(result.Rows, row)
		}
		return nil
	})

	return result, err
}

// PoolStats 获取连接池统计信息
func (s *InMemoryService) PoolStats(poolID string) (pool.Stats, error) {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return pool.Stats{}, err
	}
	return p.Stats(), nil
}

// Trim 立即执行一次回收
func (s *InMemoryService) Trim(poolID string) (int, error) {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return 0, err
	}

	t, ok := p.(trimmer)
	if !ok {
		return 0, ErrTrimNotSupported
	}
	return t.Trim(), nil
}

// SetTrace 开启或关闭跟踪日志
func (s *InMemoryService) SetTrace(poolID string, enabled bool) error {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return err
	}

	p.SetTrace(enabled)
	s.log.WithFields(logrus.Fields{
		"pool_id": poolID,
		"trace":   enabled,
	}).Info("trace toggled")
	return nil
}

// ClosePool 关闭并移除连接池，服务持有的连接会在关闭时提交
func (s *InMemoryService) ClosePool(ctx context.Context, poolID string) error {
	p, err := s.reg.Get(poolID)
	if err != nil {
		return err
	}

	if err := s.reg.Remove(poolID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, poolID)
	s.mu.Unlock()

	if err := p.Shutdown(ctx); err != nil && !errors.Is(err, pool.ErrPoolClosed) {
		return err
	}
	return nil
}

// Close 关闭所有连接池
func (s *InMemoryService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*poolEntry)
	s.mu.Unlock()

	return s.reg.Shutdown(ctx)
}

func (s *InMemoryService) infoLocked(p pool.Pool, entry *poolEntry) PoolInfo {
	handles := make([]string, 0, len(entry.handles))
	for id := range entry.handles {
		handles = append(handles, id)
	}
	sort.Strings(handles)

	return PoolInfo{
		ID:         p.ID(),
		Type:       poolType(p),
		Source:     entry.source,
		CheckedOut: handles,
		Stats:      p.Stats(),
	}
}

func poolType(p pool.Pool) string {
	switch p.(type) {
	case *pool.ConnectionPool:
		return factory.KindSelfManaged.String()
	case *adapters.PuddlePool:
		return factory.KindPuddle.String()
	default:
		return fmt.Sprintf("%T", p)
	}
}
