package xlog_test

import (
	"context"
	"testing"

	"mgmtbroker/pkg/xlog"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	ctx = xlog.NewContext(ctx, zap.String("queue", "ControlService"))
	xlog.Get(ctx).Debug("日志测试")
	ctx = xlog.NewContext(ctx, zap.Uint32("dest", 3))
	xlog.Get(ctx).Info("日志测试")

	// 子logger与全局logger不同
	require.NotSame(t, xlog.Get(context.Background()), xlog.Get(ctx))

	// 跨context传递
	dest := xlog.FromContext(ctx, context.Background(), zap.String("op", "get"))
	xlog.Get(dest).Warn("日志测试")
	require.NotSame(t, xlog.Get(context.Background()), xlog.Get(dest))

	require.Equal(t, xlog.Get(nil), xlog.Get(context.Background())) //nolint:staticcheck
}

func TestParseLevel(t *testing.T) {
	lvl, err := xlog.ParseLevel(" WARN ")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, lvl)

	_, err = xlog.ParseLevel("verbose")
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	require.NoError(t, xlog.Init(xlog.Config{Level: "info", Prod: true, Stdout: false}))
	xlog.Get(context.Background()).Info("json logger")
	require.Error(t, xlog.Init(xlog.Config{Level: "loud"}))
	require.NoError(t, xlog.Init(xlog.Config{Level: "debug", Stdout: true}))
}
