package xlog

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// 终端颜色(沿用zap/internal/color)
const (
	colorRed termColor = iota + 31
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
)

type termColor uint8

func (c termColor) Add(s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", uint8(c), s)
}

func encodeLevel(l zapcore.Level) (string, termColor) {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG", colorMagenta
	case zapcore.InfoLevel:
		return "INFO", colorBlue
	case zapcore.WarnLevel:
		return "WARN", colorYellow
	case zapcore.ErrorLevel:
		return "ERROR", colorRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return l.CapitalString(), colorRed
	default:
		return fmt.Sprintf("LEVEL(%d)", l), colorGreen
	}
}

// 自定义LevelEncoder
func customLevelEncoder(withColor bool) func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		lvlName, color := encodeLevel(l)
		if withColor {
			lvlName = color.Add(lvlName)
		}
		enc.AppendString(lvlName)
	}
}

// 配置字符串 => zap level, 未知字符串返回错误
func ParseLevel(lvl string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(lvl)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level[%v] invalid", lvl)
	}
	return l, nil
}
