package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"marketsim.com/internal/cli"
	"marketsim.com/internal/engine"
	"marketsim.com/internal/feed"
	"marketsim.com/internal/market"
	"marketsim.com/internal/ops"
	"marketsim.com/pkg/config"
	"marketsim.com/pkg/logger"
	"marketsim.com/pkg/metrics"
	"marketsim.com/pkg/ratelimit"
	"marketsim.com/pkg/safe"
	"marketsim.com/pkg/trace"
	"marketsim.com/pkg/wal"
)

var (
	configFile = flag.String("f", "", "config file, default ./config/marketsim.yaml")
	dumpFile   = flag.String("dump", "", "print a wal event journal as JSON lines and exit")
)

func main() {
	flag.Parse()
	var err error
	if *dumpFile != "" {
		err = dump(*dumpFile, os.Stdout)
	} else {
		err = run()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "marketsim:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, v, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 终端留给交互，日志默认只写文件
	logger.InitWithOptions(logger.Options{
		Service: serviceName,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cfg.Log.Console,
	})
	defer logger.Sync()

	config.Watch[Cfg](v, serviceName, func(next *Cfg) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn(context.Background(), "ignore bad log level", zap.String("level", next.Log.Level), zap.Error(err))
		}
	})

	shutdownTrace, err := initTrace(cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = shutdownTrace(ctx)
	}()

	minSpread, err := cfg.MinSpread()
	if err != nil {
		return err
	}
	sim, err := market.New(minSpread)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}
	ecfg := cfg.EngineConfig()
	var pub *feed.Publisher
	if cfg.Feed.NatsURL != "" {
		broker, err := feed.NewNatsBroker(cfg.Feed.NatsURL, nats.Name(serviceName))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer broker.Close()
		pub = feed.NewPublisher(broker, cfg.Feed.Prefix, cfg.Feed.Buffer)
		ecfg.Sinks = append(ecfg.Sinks, pub.Sink())
	}
	eng := engine.New(sim, ecfg)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return safe.Run(gctx, "engine", eng.Run) })

	record, closeEvents, err := eventRecorder(cfg.Events, eng.Events())
	if err != nil {
		return err
	}
	defer closeEvents()
	g.Go(func() error { return safe.Run(gctx, "events", record) })

	if pub != nil {
		g.Go(func() error { return safe.Run(gctx, "feed", pub.Run) })
	}

	if cfg.Metrics.Enabled {
		opts := []ops.Option{ops.WithRequestMetrics("marketsim_ops")}
		if cfg.Metrics.RateLimit > 0 {
			store := ratelimit.NewStore(rate.Limit(cfg.Metrics.RateLimit), cfg.Metrics.RateBurst, 10*time.Minute)
			store.StartJanitor(gctx, time.Minute)
			opts = append(opts, ops.WithRateLimit(store))
		}
		srv := ops.NewServer(cfg.Metrics.Addr, eng, prometheus.DefaultGatherer, opts...)
		g.Go(func() error { return safe.Run(gctx, "ops-http", srv.Run) })
	}

	logger.Info(ctx, "marketsim started",
		zap.String("min_spread_percent", minSpread.String()),
		zap.Int("seed_orders", len(cfg.Market.Seed)),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	sh := cli.New(eng, os.Stdin, os.Stdout, minSpread)
	g.Go(func() error {
		// shell 退出即整体退出
		defer cancel()
		return safe.Run(gctx, "shell", func(ctx context.Context) error {
			sh.Banner()
			if err := sh.Seed(ctx, cfg.Market.Seed); err != nil {
				return err
			}
			sh.Exec(ctx, "status")
			return sh.Run(ctx)
		})
	})

	err = g.Wait()
	logger.Info(context.Background(), "marketsim stopped",
		zap.Uint64("mailbox_full", eng.MailboxFull()),
		zap.Uint64("events_dropped", eng.DroppedEvents()),
		zap.Error(err))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func initTrace(cfg TraceCfg) (func(context.Context) error, error) {
	opts := trace.Options{
		Service:     serviceName,
		Exporter:    cfg.Exporter,
		Endpoint:    cfg.Endpoint,
		SampleRatio: cfg.SampleRatio,
	}
	var f *os.File
	if cfg.Exporter == trace.ExporterStdout {
		var err error
		if err = os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		if f, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		opts.Writer = f
	}
	shutdown, err := trace.Init(context.Background(), opts)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if f != nil {
			_ = f.Close()
		}
		return err
	}, nil
}

var eventCodec = engine.JSONEvCodec{Version: 1}

// eventRecorder 按配置选择事件流的落盘方式
func eventRecorder(cfg EventsCfg, ch <-chan engine.Event) (func(context.Context) error, func(), error) {
	if cfg.File != "" && cfg.Format == FormatWAL {
		w, err := wal.OpenWriter(cfg.File, wal.WriterOptions{})
		if err != nil {
			return nil, nil, fmt.Errorf("open events journal: %w", err)
		}
		record := func(ctx context.Context) error { return engine.RecordEvents(ctx, ch, w, eventCodec) }
		return record, func() { _ = w.Close() }, nil
	}
	out, closeFn, err := eventWriter(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	record := func(ctx context.Context) error { return engine.WriteEvents(ctx, ch, out, eventCodec) }
	return record, closeFn, nil
}

// dump 把 wal 格式的事件文件转成 JSON lines
func dump(path string, out io.Writer) error {
	ch := make(chan engine.Event, 256)
	var replayErr error
	var st wal.ReplayStats
	go func() {
		defer close(ch)
		st, replayErr = engine.ReplayEvents(path, eventCodec, func(ev engine.Event) error {
			ch <- ev
			return nil
		})
	}()
	if err := engine.WriteEvents(context.Background(), ch, out, eventCodec); err != nil {
		return err
	}
	if replayErr != nil {
		return fmt.Errorf("replay %s after %d records: %w", path, st.Records, replayErr)
	}
	if st.TruncatedTail {
		fmt.Fprintf(os.Stderr, "warning: %s ends with a partial record after offset %d\n", path, st.LastGoodOffset)
	}
	return nil
}

// eventWriter 事件流输出；没配置文件时丢弃，但仍要消费 channel
func eventWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open events file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
