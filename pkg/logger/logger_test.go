package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 劫持输出到 buffer
func captureLog(t *testing.T, lvl zapcore.LevelEnabler) *bytes.Buffer {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"

	old := Log
	Log = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), lvl))
	t.Cleanup(func() { Log = old })
	return buffer
}

func TestLogger_Info_WithTraceID(t *testing.T) {
	buffer := captureLog(t, zap.InfoLevel)

	ctx := WithTrace(context.Background(), "test-trace-12345")
	Info(ctx, "订单已挂入", zap.Uint64("order_id", 7), zap.String("price", "100.00"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &logEntry), "日志输出必须是合法的 JSON")

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "订单已挂入", logEntry["msg"])
	assert.Equal(t, float64(7), logEntry["order_id"])
	assert.Equal(t, "100.00", logEntry["price"])
	assert.Equal(t, "test-trace-12345", logEntry["trace_id"], "TraceID 未能自动注入到日志中")
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buffer := captureLog(t, zap.InfoLevel)

	Error(context.Background(), "撮合失败", zap.String("reason", "spread"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &logEntry))

	_, exists := logEntry["trace_id"]
	assert.False(t, exists, "没有 TraceID 的 Context 不应该输出 trace_id 字段")
	assert.Equal(t, "error", logEntry["level"])
}

func TestLogger_NilContext(t *testing.T) {
	buffer := captureLog(t, zap.InfoLevel)
	//nolint:staticcheck // nil ctx 也不能 panic
	Warn(nil, "no ctx")
	assert.Contains(t, buffer.String(), "no ctx")
	assert.Equal(t, "", TraceID(nil))
}

func TestSetLevel_AtRuntime(t *testing.T) {
	buffer := captureLog(t, level)
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, SetLevel("warn"))
	Info(context.Background(), "hidden")
	assert.Empty(t, buffer.String())

	require.NoError(t, SetLevel("debug"))
	Debug(context.Background(), "shown")
	assert.Contains(t, buffer.String(), "shown")
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestInitWithOptions_WritesFile(t *testing.T) {
	old := Log
	t.Cleanup(func() {
		Log = old
		_ = SetLevel("info")
	})

	path := filepath.Join(t.TempDir(), "sub", "marketsim.log")
	InitWithOptions(Options{Service: "marketsim", Level: "info", File: path})
	Info(WithTrace(context.Background(), "abc"), "started")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &logEntry))
	assert.Equal(t, "INFO", logEntry["level"])
	assert.Equal(t, "marketsim", logEntry["service"])
	assert.Equal(t, "abc", logEntry["trace_id"])
	assert.NotEmpty(t, logEntry["caller"])
}
