package pool

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxConnections 是未指定最大连接数时使用的值
	DefaultMaxConnections = 10

	// DefaultReapInterval 是回收任务的默认执行间隔
	DefaultReapInterval = 60 * time.Second
)

// PoolOptions 定义连接池的配置选项
type PoolOptions struct {
	// PoolID 是连接池的标识，出现在所有日志记录中
	PoolID string

	// MaxConnections 是预热的连接数，也是回收任务收缩空闲连接的目标
	MaxConnections int

	// ReapInterval 是回收任务的执行间隔，为 0 表示不启动后台回收
	ReapInterval time.Duration

	// Warmup 指定是否在创建时预先打开 MaxConnections 个连接
	Warmup bool

	// Trace 指定是否输出获取/归还/回收的跟踪日志
	Trace bool

	// Logger 是连接池使用的日志记录器
	Logger logrus.FieldLogger

	// EventListeners 是连接事件的监听器列表
	EventListeners []EventListener
}

// DefaultOptions 返回默认的连接池选项
func DefaultOptions() *PoolOptions {
	return &PoolOptions{
		PoolID:         "default",
		MaxConnections: DefaultMaxConnections,
		ReapInterval:   DefaultReapInterval,
		Warmup:         true,
		Trace:          false,
		Logger:         logrus.StandardLogger(),
	}
}

// Option 是用于配置池选项的函数类型
type Option func(*PoolOptions)

// WithPoolID 设置连接池标识
func WithPoolID(id string) Option {
	return func(opts *PoolOptions) {
		opts.PoolID = id
	}
}

// WithMaxConnections 设置最大连接数，非正数会被替换为默认值
func WithMaxConnections(max int) Option {
	return func(opts *PoolOptions) {
		opts.MaxConnections = max
	}
}

// WithReapInterval 设置回收任务的执行间隔
func WithReapInterval(interval time.Duration) Option {
	return func(opts *PoolOptions) {
		opts.ReapInterval = interval
	}
}

// WithWarmup 设置是否预热连接
func WithWarmup(warmup bool) Option {
	return func(opts *PoolOptions) {
		opts.Warmup = warmup
	}
}

// WithTrace 设置初始的跟踪开关
func WithTrace(trace bool) Option {
	return func(opts *PoolOptions) {
		opts.Trace = trace
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger logrus.FieldLogger) Option {
	return func(opts *PoolOptions) {
		if logger != nil {
			opts.Logger = logger
		}
	}
}

// WithEventListener 添加事件监听器
func WithEventListener(listener EventListener) Option {
	return func(opts *PoolOptions) {
		opts.EventListeners = append(opts.EventListeners, listener)
	}
}
