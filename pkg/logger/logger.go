package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认初始化一个 Nop Logger，防止未 Init 就调用导致 panic
	Log = zap.NewNop()
}

// Init 初始化全局 logger; level 为空时使用环境默认级别，无法解析时 panic
func Init(env, level string) {
	config := newConfig(env)
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			panic(err)
		}
		config.Level = lvl
	}

	var err error
	Log, err = config.Build(zap.AddCallerSkip(1), zap.Fields(zap.String("service", "station")))
	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(Log)
}

func newConfig(env string) zap.Config {
	if env == "production" {
		c := zap.NewProductionConfig()
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return c
	}
	c := zap.NewDevelopmentConfig()
	c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return c
}

// Enabled 当前 logger 是否输出该级别，拼装开销大的日志前可先判断
func Enabled(lvl zapcore.Level) bool {
	return Log.Core().Enabled(lvl)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
