package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"marketsim.com/pkg/logger"
)

// Go 安全启动协程，panic 只记日志
func Go(name string, fn func()) {
	GoCtx(context.Background(), name, func(context.Context) { fn() })
}

// GoCtx 携带 ctx 启动，日志里保留 trace_id
func GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, name, r)
			}
		}()
		fn(ctx)
	}()
}

// Run 同步执行 fn，panic 转成 error 返回，适合挂在 errgroup 上
func Run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(ctx, name, r)
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn(ctx)
}

func logPanic(ctx context.Context, name string, r any) {
	logger.Error(ctx, "goroutine panic recovered",
		zap.String("goroutine", name),
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())),
	)
}
