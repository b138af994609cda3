package xcommon

import (
	"context"
	"runtime/debug"
	"sync"

	"mgmtbroker/pkg/xlog"

	"go.uber.org/zap"
)

// 通过waitGroup控制协程
// defer wg.Done(ctx), 不可再套一层func, recover不可跳过多层defer函数
type WaitGroup struct {
	sync.WaitGroup
}

func (wg *WaitGroup) Done(ctx context.Context) {
	if r := recover(); r != nil {
		xlog.Get(ctx).Error("Goroutine panic", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
		wg.WaitGroup.Done()
		panic(r)
	}
	wg.WaitGroup.Done()
}

// 启动受管协程
func (wg *WaitGroup) Go(ctx context.Context, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done(ctx)
		fn(ctx)
	}()
}

// defer Recover(ctx), 不可再套一层func
func Recover(ctx context.Context) {
	if r := recover(); r != nil {
		xlog.Get(ctx).Error("Goroutine panic", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
		panic(r)
	}
}
