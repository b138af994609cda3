package xlog

import (
	"context"

	"go.uber.org/zap/zapcore"
)

type loggerKeyType int

const loggerKey loggerKeyType = iota

// 生成一个新的子logger，绑定到新的context中
func NewContext(ctx context.Context, fields ...zapcore.Field) context.Context {
	return context.WithValue(ctx, loggerKey, newLogger(Get(ctx).Raw().With(fields...)))
}

// 从srcContext中取出logger, 绑定到destCtx中
// 用于跨协程传递: 请求ctx可能已取消, 但日志字段仍需保留
func FromContext(srcCtx, destCtx context.Context, fields ...zapcore.Field) context.Context {
	srcLogger := Get(srcCtx).Raw()
	return context.WithValue(destCtx, loggerKey, newLogger(srcLogger.With(fields...)))
}

// context获取logger
func Get(ctx context.Context) Logger {
	if ctx == nil {
		return current()
	}
	if ctxLogger, ok := ctx.Value(loggerKey).(Logger); ok {
		return ctxLogger
	}
	return current()
}
