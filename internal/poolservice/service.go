package poolservice

import (
	"context"
	"errors"

	"github.com/fyerfyer/embedpool/pool"
)

var (
	// ErrConnectionNotFound 表示请求的连接没有被服务持有
	ErrConnectionNotFound = errors.New("connection not checked out")

	// ErrTrimNotSupported 表示连接池不支持手动回收
	ErrTrimNotSupported = errors.New("pool does not support trimming")
)

// PoolInfo 包含连接池的基本信息
type PoolInfo struct {
	// 连接池标识
	ID string `json:"id"`
	// 连接池类型
	Type string `json:"type"`
	// 配置来源
	Source string `json:"source"`
	// 通过服务取出、尚未归还的连接
	CheckedOut []string `json:"checkedOut,omitempty"`
	// 连接池状态
	Stats pool.Stats `json:"stats"`
}

// QueryResult 是查询结果的文本表示
type QueryResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Service 定义连接池服务接口
type Service interface {
	// OpenPool 从配置来源打开连接池，同一个 poolid 只会创建一次
	OpenPool(ctx context.Context, source string) (PoolInfo, error)

	// ListPools 列出所有连接池
	ListPools() []PoolInfo

	// Acquire 从连接池取出一个连接并由服务持有，返回连接标识
	Acquire(ctx context.Context, poolID string) (string, error)

	// Release 归还服务持有的连接
	Release(poolID, connID string) error

	// Exec 在连接池的一个连接上执行语句，返回受影响的行数，行数未知时为 -1
	Exec(ctx context.Context, poolID, query string) (int64, error)

	// Query 在连接池的一个连接上执行查询
	Query(ctx context.Context, poolID, query string) (QueryResult, error)

	// PoolStats 获取连接池统计信息
	PoolStats(poolID string) (pool.Stats, error)

	// Trim 立即执行一次回收，返回移除的连接数
	Trim(poolID string) (int, error)

	// SetTrace 开启或关闭连接池的跟踪日志
	SetTrace(poolID string, enabled bool) error

	// ClosePool 关闭并移除连接池
	ClosePool(ctx context.Context, poolID string) error

	// Close 关闭所有连接池
	Close(ctx context.Context) error
}
