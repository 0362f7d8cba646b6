package connlimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrWaitTimeout 当等待打开连接的许可超过最大等待时间时返回
	ErrWaitTimeout = errors.New("wait for connection permit timed out")

	// ErrRateLimited 当不等待的打开请求超过速率限制时返回
	ErrRateLimited = errors.New("connection open rate exceeded")
)

// Limiter 限制物理连接的打开速率
type Limiter interface {
	// Allow 检查是否允许立即打开新连接，不等待
	Allow() bool

	// Wait 等待直到允许打开新连接或上下文取消
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 使用令牌桶算法限制连接打开速率
type TokenBucketLimiter struct {
	limiter     *rate.Limiter
	maxWaitTime time.Duration
}

// TokenBucketOption 是令牌桶限流器的配置选项
type TokenBucketOption func(*TokenBucketLimiter)

// WithMaxWaitTime 设置最大等待时间，为 0 表示只受上下文控制
func WithMaxWaitTime(d time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.maxWaitTime = d
	}
}

// NewTokenBucketLimiter 创建一个新的基于令牌桶算法的限流器
// 参数:
// - r: 每秒允许打开的连接数
// - burst: 允许的最大突发数
func NewTokenBucketLimiter(r float64, burst int, opts ...TokenBucketOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		limiter:     rate.NewLimiter(rate.Limit(r), burst),
		maxWaitTime: 5 * time.Second, // 默认最大等待时间
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow 立即检查是否允许打开新连接
func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait 等待直到允许打开新连接或上下文取消
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	// 如果设置了最大等待时间，使用带超时的上下文
	if l.maxWaitTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWaitTime)
		defer cancel()
	}

	if err := l.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrWaitTimeout
		}
		// 需要的等待时间超过了截止时间，rate 会直接返回错误
		if ctx.Err() == nil {
			if _, ok := ctx.Deadline(); ok {
				return ErrWaitTimeout
			}
		}
		return err
	}
	return nil
}
