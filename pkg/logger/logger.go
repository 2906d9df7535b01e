package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// TraceIdKey trace id 在 Context 中的 key
const TraceIdKey ctxKey = "trace_id"

// 全局 Logger，未 Init 前是 Nop，库代码可以放心调用
var Log = zap.NewNop()

// level 运行期可调，配置热更新时改它
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

type Options struct {
	Service string
	Level   string // debug, info, warn, error
	File    string // 为空则不写文件
	Console bool   // 是否同时输出到 stdout
}

// InitWithOptions 交互式程序一般只写文件，避免 JSON 日志和终端输出混在一起
func InitWithOptions(opts Options) {
	_ = SetLevel(opts.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	var writeSyncers []zapcore.WriteSyncer
	if opts.Console {
		writeSyncers = append(writeSyncers, zapcore.AddSync(os.Stdout))
	}
	if opts.File != "" {
		// 目录或文件打不开就退回到只写控制台，不中断程序
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}
	if len(writeSyncers) == 0 {
		writeSyncers = append(writeSyncers, zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)
	// 封装了一层，Skip 1 才能让行号指向调用方
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", opts.Service))
}

// SetLevel 运行期修改日志级别；无法解析时保持原级别并返回错误
func SetLevel(l string) error {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(l)); err != nil {
		return err
	}
	level.SetLevel(zl)
	return nil
}

// Level 当前日志级别
func Level() zapcore.Level { return level.Level() }

// WithTrace 把 trace id 放进 ctx
func WithTrace(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, TraceIdKey, traceID)
}

// TraceID 取出 ctx 中的 trace id
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIdKey).(string)
	return id
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if traceID := TraceID(ctx); traceID != "" {
		*fields = append(*fields, zap.String("trace_id", traceID))
	}
}

// Sync 刷新缓冲区，main 里 defer 调用
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
