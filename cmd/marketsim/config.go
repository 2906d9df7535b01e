package main

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"marketsim.com/internal/cli"
	"marketsim.com/internal/engine"
	"marketsim.com/pkg/config"
	"marketsim.com/pkg/trace"
)

const serviceName = "marketsim"

type Cfg struct {
	Log     LogCfg     `mapstructure:"log"`
	Market  MarketCfg  `mapstructure:"market"`
	Engine  EngineCfg  `mapstructure:"engine"`
	Metrics MetricsCfg `mapstructure:"metrics"`
	Events  EventsCfg  `mapstructure:"events"`
	Trace   TraceCfg   `mapstructure:"trace"`
	Feed    FeedCfg    `mapstructure:"feed"`
}

// FeedCfg 行情推送，nats_url 为空时不推
type FeedCfg struct {
	NatsURL string `mapstructure:"nats_url"`
	Prefix  string `mapstructure:"prefix"`
	Buffer  int    `mapstructure:"buffer"`
}

// TraceCfg exporter 为空时不采集；stdout 导出写到 file，避免刷到终端
type TraceCfg struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	File        string  `mapstructure:"file"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogCfg struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type MarketCfg struct {
	// 字符串，避免浮点误差；"1" 表示 1%
	MinSpreadPercent string     `mapstructure:"min_spread_percent"`
	Seed             []cli.Seed `mapstructure:"seed"`
}

type EngineCfg struct {
	MailboxSize int     `mapstructure:"mailbox_size"`
	BatchMax    int     `mapstructure:"batch_max"`
	RateLimit   float64 `mapstructure:"rate_limit"` // 每秒命令数，0 不限
	RateBurst   int     `mapstructure:"rate_burst"`
	EventBuffer int     `mapstructure:"event_buffer"`
}

// MetricsCfg 运维 http：/healthz /metrics /debug/pprof
type MetricsCfg struct {
	Enabled   bool    `mapstructure:"enabled"`
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"` // 每客户端每路由每秒请求数，0 不限
	RateBurst int     `mapstructure:"rate_burst"`
}

// EventsCfg 事件流落盘，file 为空时丢弃。
// format: jsonl 每行一条，wal 带长度和校验的二进制帧（可用 -dump 读回）
type EventsCfg struct {
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"`
}

const (
	FormatJSONL = "jsonl"
	FormatWAL   = "wal"
)

func defaults() map[string]any {
	return map[string]any{
		"log.level":                 "info",
		"log.file":                  "logs/marketsim.log",
		"log.console":               false,
		"market.min_spread_percent": "1",
		"engine.mailbox_size":       1024,
		"engine.batch_max":          64,
		"engine.rate_limit":         0,
		"engine.rate_burst":         0,
		"engine.event_buffer":       4096,
		"metrics.enabled":           false,
		"metrics.addr":              "127.0.0.1:9464",
		"metrics.rate_limit":        5,
		"metrics.rate_burst":        10,
		"events.file":               "",
		"events.format":             FormatJSONL,
		"trace.exporter":            "",
		"trace.endpoint":            "localhost:4317",
		"trace.file":                "logs/marketsim.trace.jsonl",
		"trace.sample_ratio":        1.0,
		"feed.nats_url":             "",
		"feed.prefix":               "marketsim",
		"feed.buffer":               4096,
	}
}

func loadConfig(path string) (*Cfg, *viper.Viper, error) {
	cfg, v, err := config.Load[Cfg](serviceName, path, defaults())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func (c *Cfg) MinSpread() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Market.MinSpreadPercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market.min_spread_percent %q: %w", c.Market.MinSpreadPercent, err)
	}
	return d, nil
}

func (c *Cfg) Validate() error {
	d, err := c.MinSpread()
	if err != nil {
		return err
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("market.min_spread_percent must be in [0,100), got %s", d)
	}
	if c.Engine.MailboxSize < 0 || c.Engine.BatchMax < 0 || c.Engine.EventBuffer < 0 {
		return errors.New("engine sizes must not be negative")
	}
	if c.Engine.RateLimit < 0 || c.Engine.RateBurst < 0 {
		return errors.New("engine rate limit must not be negative")
	}
	if c.Metrics.RateLimit < 0 || c.Metrics.RateBurst < 0 {
		return errors.New("metrics rate limit must not be negative")
	}
	if c.Events.Format != FormatJSONL && c.Events.Format != FormatWAL {
		return fmt.Errorf("events.format must be %q or %q, got %q", FormatJSONL, FormatWAL, c.Events.Format)
	}
	switch c.Trace.Exporter {
	case trace.ExporterNone, trace.ExporterOTLP, trace.ExporterStdout:
	default:
		return fmt.Errorf("trace.exporter must be empty, %q or %q, got %q", trace.ExporterOTLP, trace.ExporterStdout, c.Trace.Exporter)
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		return fmt.Errorf("trace.sample_ratio must be in [0,1], got %v", c.Trace.SampleRatio)
	}
	if c.Feed.Buffer < 0 {
		return errors.New("feed.buffer must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}

func (c *Cfg) EngineConfig() engine.Config {
	return engine.Config{
		Actor: engine.ActorConfig{
			MailboxSize: c.Engine.MailboxSize,
			BatchMax:    c.Engine.BatchMax,
			RateLimit:   c.Engine.RateLimit,
			RateBurst:   c.Engine.RateBurst,
		},
		EventBusSize: c.Engine.EventBuffer,
		Metrics:      c.Metrics.Enabled,
	}
}
