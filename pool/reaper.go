package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// reaper 是连接池拥有的后台回收任务。
// 每轮先执行一次 pass，然后在锁外等待 interval，直到被 stop 取消。
type reaper struct {
	interval time.Duration
	pass     func(ctx context.Context)
	log      logrus.FieldLogger

	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

// startReaper 创建并启动回收任务
func startReaper(interval time.Duration, pass func(ctx context.Context), log logrus.FieldLogger) *reaper {
	ctx, cancel := context.WithCancel(context.Background())
	r := &reaper{
		interval: interval,
		pass:     pass,
		log:      log,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go r.run(ctx)
	return r
}

func (r *reaper) run(ctx context.Context) {
	defer func() {
		r.stopped.Store(true)
		close(r.done)
	}()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		r.runPass(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.interval)

		select {
		case <-ctx.Done():
			r.log.Debug("reaper stopped")
			return
		case <-timer.C:
		}
	}
}

// runPass 执行一轮回收，单轮中的 panic 只记录日志，任务继续运行
func (r *reaper) runPass(ctx context.Context) {
	defer func() {
		if v := recover(); v != nil {
			r.log.WithError(fmt.Errorf("%v", v)).Error("reaper pass panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}
	r.pass(ctx)
}

// stop 发出取消信号并等待任务退出或 ctx 结束
func (r *reaper) stop(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *reaper) running() bool {
	return r != nil && !r.stopped.Load()
}
