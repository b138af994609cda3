package xlog

import (
	"os"
	"sync"

	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const FieldTimestamp = "@timestamp"

type Config struct {
	Level  string // debug|info|warn|error
	Prod   bool   // json格式输出
	Stdout bool   // 关闭后日志丢弃(测试用)
}

var (
	mu      sync.RWMutex
	gLogger Logger
)

func init() {
	gLogger = initLogger(zapcore.DebugLevel, false, true)
}

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return gLogger
}

// 按配置重建全局logger, 已绑定到context中的子logger不受影响
func Init(conf Config) error {
	lvl, err := ParseLevel(conf.Level)
	if err != nil {
		return err
	}
	l := initLogger(lvl, conf.Prod, conf.Stdout)
	mu.Lock()
	gLogger = l
	mu.Unlock()
	return nil
}

// 刷新缓冲
func Sync() {
	_ = current().Raw().Sync()
}

func getEncoder(isProd bool) zapcore.Encoder {
	config := ecsCompatibleEncoder(!isProd)
	config.TimeKey = FieldTimestamp
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	if isProd {
		return zapcore.NewJSONEncoder(config)
	}
	return zapcore.NewConsoleEncoder(config)
}

// Elastic Common Schema (ECS) 兼容的encoder格式, 便于日志被ELK归档
func ecsCompatibleEncoder(withColor bool) zapcore.EncoderConfig {
	return ecszap.EncoderConfig{
		EnableName:       true,
		EncodeName:       zapcore.FullNameEncoder,
		EnableStackTrace: true,
		EnableCaller:     true,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      customLevelEncoder(withColor),
		EncodeDuration:   zapcore.StringDurationEncoder,
	}.ToZapCoreEncoderConfig()
}

func defaultOptions() []zap.Option {
	return []zap.Option{
		zap.WithCaller(true),
		// DPanic时自动增加Stacktrace
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.DPanicLevel)),
	}
}

func initLogger(logLvl zapcore.Level, isProd bool, withStdout bool) Logger {
	writerSinker := zapcore.Lock(os.Stdout)
	if !withStdout {
		writerSinker = zapcore.Lock(zapcore.NewMultiWriteSyncer())
	}
	core := zapcore.NewCore(getEncoder(isProd), writerSinker, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= logLvl
	}))
	return newLogger(zap.New(core, defaultOptions()...).Named("broker"))
}
