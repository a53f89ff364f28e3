package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"nonsense", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	l := New("warn", "json")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestContextHelpers(t *testing.T) {
	fallback := zap.NewNop()
	ctx := context.Background()
	assert.Same(t, fallback, FromContext(ctx, fallback))

	ctx = WithRequestID(ctx, fallback, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.NotSame(t, fallback, FromContext(ctx, fallback))
}

func TestBootstrap_WritesBeforeConfiguration(t *testing.T) {
	log := Bootstrap("server")
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))

	var buf bytes.Buffer
	newLogger("info", "json", zapcore.AddSync(&buf)).Named("server").
		Error("failed to load configuration", zap.Error(errors.New("bad port")))
	require.NotZero(t, buf.Len())
	assert.Contains(t, buf.String(), `"logger":"server"`)
	assert.Contains(t, buf.String(), "bad port")
}
