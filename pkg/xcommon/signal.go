package xcommon

import (
	"context"
	"os/signal"
	"syscall"

	"mgmtbroker/pkg/xlog"
)

// 等待退出信号, 或stopCh被关闭(内部触发的停机)
func UntilSignal(ctx context.Context, stopCh <-chan struct{}) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		xlog.Get(ctx).Info("Recv exit signal")
	case <-stopCh:
		xlog.Get(ctx).Info("Recv internal stop")
	}
}
