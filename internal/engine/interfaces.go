package engine

import (
	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
)

// Market actor 背后的撮合实现，*market.Simulator 满足它
type Market interface {
	PlaceOrder(side matching.Side, price matching.Price, qty int64) (market.PlacementOutcome, error)
	RemoveOrder(orderID uint64) (matching.Order, bool)

	Status() market.MarketStatus
	Depth(levels int) (bids, asks []matching.Level)
	TradeHistory() []matching.Trade
	RecentTrades(n int) []matching.Trade
	Order(orderID uint64) (matching.Order, bool)
}

type Emitter interface {
	Accepted(reqID uint64, orderID uint64, side matching.Side, price matching.Price, qty int64)
	Rejected(reqID uint64, orderID uint64, side matching.Side, code int, reason string)
	Added(reqID uint64, o matching.Order)
	Cancelled(reqID uint64, o matching.Order)
	Trade(reqID uint64, t matching.Trade)
	Dropped(reqID uint64, orderID uint64, side matching.Side, qty int64)
}

// EventSink：下游可能慢，只提供非阻塞的 TryPublish
type EventSink interface {
	TryPublish(ev Event) bool
}

type EvCodec interface {
	Encode(dst []byte, ev Event) ([]byte, error)
	Decode(payload []byte) (Event, error)
}
