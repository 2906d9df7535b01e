package engine

import (
	"context"

	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
)

type Config struct {
	Actor        ActorConfig
	EventBusSize int  // 事件总线缓冲
	Metrics      bool // 事件同步进 prometheus，并在每批后刷新盘口 gauge
	// 额外的事件出口，例如行情推送；必须不阻塞
	Sinks []EventSink
}

// Engine 写路径经过 actor 串行化，读路径直接走 Market（它自带读写锁）
type Engine struct {
	mk    Market
	actor *Actor
	bus   *ChanBus
}

func New(mk Market, cfg Config) *Engine {
	bus := NewChanBus(cfg.EventBusSize)

	var sink EventSink = bus
	var opts []ActorOption
	if cfg.Metrics || len(cfg.Sinks) > 0 {
		fan := FanOut{bus}
		if cfg.Metrics {
			fan = append(fan, MetricsSink{})
			opts = append(opts, WithBatchHook(func() { observeBook(mk) }))
		}
		sink = append(fan, cfg.Sinks...)
	}
	return &Engine{
		mk:    mk,
		actor: NewActor(mk, sink, cfg.Actor, opts...),
		bus:   bus,
	}
}

// Run 阻塞执行 actor 直到 ctx 取消
func (e *Engine) Run(ctx context.Context) error {
	e.actor.Run(ctx)
	return nil
}

// Events 事件流，消费慢了会丢，见 DroppedEvents
func (e *Engine) Events() <-chan Event  { return e.bus.C() }
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }
func (e *Engine) MailboxFull() uint64   { return e.actor.MailboxFull() }
func (e *Engine) Done() <-chan struct{} { return e.actor.Done() }

func (e *Engine) Place(ctx context.Context, side matching.Side, price matching.Price, qty int64) (market.PlacementOutcome, error) {
	return e.actor.Place(ctx, side, price, qty)
}

func (e *Engine) Cancel(ctx context.Context, orderID uint64) (matching.Order, bool, error) {
	return e.actor.Cancel(ctx, orderID)
}

func (e *Engine) Status() market.MarketStatus { return e.mk.Status() }

func (e *Engine) Depth(levels int) (bids, asks []matching.Level) { return e.mk.Depth(levels) }

func (e *Engine) TradeHistory() []matching.Trade { return e.mk.TradeHistory() }

func (e *Engine) RecentTrades(n int) []matching.Trade { return e.mk.RecentTrades(n) }

func (e *Engine) Order(orderID uint64) (matching.Order, bool) { return e.mk.Order(orderID) }
