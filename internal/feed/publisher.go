package feed

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"marketsim.com/internal/engine"
	"marketsim.com/pkg/logger"
)

const DefaultPrefix = "marketsim"

// Topic 每种事件一个 topic，例如 marketsim:trade
func Topic(prefix string, t engine.EventType) string {
	return prefix + ":" + t.String()
}

// AllTopics 订阅全部事件用
func AllTopics(prefix string) []string {
	out := make([]string, 0, 8)
	for _, t := range engine.EventTypes() {
		out = append(out, Topic(prefix, t))
	}
	return out
}

// Publisher 把引擎事件编码后推到 broker。
// 自己带一个事件总线，engine 往里 TryPublish，Run 在独立协程里发送。
type Publisher struct {
	broker Broker
	bus    *engine.ChanBus
	codec  engine.EvCodec
	prefix string

	published atomic.Uint64
	failed    atomic.Uint64
}

func NewPublisher(b Broker, prefix string, bufSize int) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		broker: b,
		bus:    engine.NewChanBus(bufSize),
		codec:  engine.JSONEvCodec{Version: 1},
		prefix: prefix,
	}
}

// Sink 交给 engine.Config.Sinks
func (p *Publisher) Sink() engine.EventSink { return p.bus }

func (p *Publisher) Published() uint64 { return p.published.Load() }
func (p *Publisher) Failed() uint64    { return p.failed.Load() }
func (p *Publisher) Dropped() uint64   { return p.bus.Dropped() }

// Run 阻塞到 ctx 取消；单条发送失败只记日志，不退出
func (p *Publisher) Run(ctx context.Context) error {
	buf := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.bus.C():
			var err error
			if buf, err = p.codec.Encode(buf[:0], ev); err != nil {
				p.failed.Add(1)
				logger.Error(ctx, "feed encode event", zap.Stringer("type", ev.Type), zap.Error(err))
				continue
			}
			// broker 可能持有 payload，不能复用 buf
			payload := append([]byte(nil), buf...)
			if err = p.broker.Publish(ctx, Topic(p.prefix, ev.Type), payload); err != nil {
				if p.failed.Add(1) == 1 {
					logger.Warn(ctx, "feed publish failed", zap.Error(err))
				}
				continue
			}
			p.published.Add(1)
		}
	}
}
