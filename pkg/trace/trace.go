package trace

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	ExporterNone   = ""
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

type Options struct {
	Service  string
	Exporter string    // "", otlp, stdout
	Endpoint string    // otlp grpc 地址，例如 localhost:4317
	Writer   io.Writer // stdout 导出时写到哪里
	// 采样率 (0,1]，<=0 视为全采
	SampleRatio float64
}

// Init 设置全局 TracerProvider，返回退出时调用的关闭函数。
// Exporter 为空时什么都不做，otel 全局默认就是 noop。
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch opts.Exporter {
	case ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterOTLP:
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(opts.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(ctx, client)
	case ExporterStdout:
		var so []stdouttrace.Option
		if opts.Writer != nil {
			so = append(so, stdouttrace.WithWriter(opts.Writer))
		}
		exporter, err = stdouttrace.New(so...)
	default:
		return nil, fmt.Errorf("trace: unknown exporter %q", opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", opts.Exporter, err)
	}

	tp, err := NewProvider(opts, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// NewProvider 带 service.name 资源和采样配置的 provider，测试里可以挂 SpanRecorder
func NewProvider(opts Options, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(opts.Service)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))
	}
	all := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}, extra...)
	return sdktrace.NewTracerProvider(all...), nil
}
