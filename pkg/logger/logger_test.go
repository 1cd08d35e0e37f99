package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestInit(t *testing.T) {
	// Init 전에도 no-op 로거로 동작
	Info("before init", "k", "v")
	assert.NotNil(t, L("engine"))

	require.NoError(t, Init("warn", "production"))
	defer Sync()

	assert.False(t, L("").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L("").Core().Enabled(zapcore.WarnLevel))
}
