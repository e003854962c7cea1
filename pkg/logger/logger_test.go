package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInit_Level(t *testing.T) {
	t.Cleanup(func() { Init("development", "") })

	Init("production", "")
	if Enabled(zapcore.DebugLevel) || !Enabled(zapcore.InfoLevel) {
		t.Fatal("production 默认应为 info")
	}

	Init("production", "warn")
	if Enabled(zapcore.InfoLevel) || !Enabled(zapcore.WarnLevel) {
		t.Fatal("log_level=warn 未生效")
	}

	Init("development", "")
	if !Enabled(zapcore.DebugLevel) {
		t.Fatal("development 默认应为 debug")
	}
}

func TestInit_BadLevel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("无法解析的级别应 panic")
		}
	}()
	Init("production", "loud")
}
