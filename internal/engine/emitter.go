package engine

import (
	"strings"
	"sync/atomic"

	"marketsim.com/internal/matching"
	"marketsim.com/pkg/metrics"
)

// sinkEmitter 一条命令一个，负责填 Seq/Idx 并投递到 sink
type sinkEmitter struct {
	sink    EventSink
	seq     uint64
	idx     uint16
	dropped *atomic.Uint64
}

func (e *sinkEmitter) pub(ev Event) {
	ev.Seq = e.seq
	ev.Idx = e.idx
	e.idx++
	if !e.sink.TryPublish(ev) {
		e.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
	}
}

func (e *sinkEmitter) Accepted(reqID uint64, orderID uint64, side matching.Side, price matching.Price, qty int64) {
	e.pub(Event{Type: EvAccepted, ReqID: reqID, OrderID: orderID, Side: side, Price: price, Qty: qty})
}

func (e *sinkEmitter) Rejected(reqID uint64, orderID uint64, side matching.Side, code int, reason string) {
	e.pub(Event{Type: EvRejected, ReqID: reqID, OrderID: orderID, Side: side, Code: code, Reason: reason})
}

func (e *sinkEmitter) Added(reqID uint64, o matching.Order) {
	e.pub(Event{Type: EvAdded, ReqID: reqID, OrderID: o.ID, Side: o.Side, Price: o.Price, Qty: o.Qty})
}

func (e *sinkEmitter) Cancelled(reqID uint64, o matching.Order) {
	e.pub(Event{Type: EvCancelled, ReqID: reqID, OrderID: o.ID, Side: o.Side, Price: o.Price, Qty: o.Qty})
}

func (e *sinkEmitter) Trade(reqID uint64, t matching.Trade) {
	e.pub(Event{
		Type: EvTrade, ReqID: reqID,
		TradeID: t.ID, MakerOrderID: t.MakerOrderID, TakerOrderID: t.TakerOrderID,
		Price: t.Price, Qty: t.Qty, TsNano: t.Time.UnixNano(),
	})
}

func (e *sinkEmitter) Dropped(reqID uint64, orderID uint64, side matching.Side, qty int64) {
	e.pub(Event{Type: EvDropped, ReqID: reqID, OrderID: orderID, Side: side, Qty: qty})
}

type noopSink struct{}

func (noopSink) TryPublish(Event) bool { return true }

// FanOut 投递给所有 sink，任意一个丢了就算丢
type FanOut []EventSink

func (f FanOut) TryPublish(ev Event) bool {
	ok := true
	for _, s := range f {
		if !s.TryPublish(ev) {
			ok = false
		}
	}
	return ok
}

// MetricsSink 把事件折算成 prometheus 计数，永不丢
type MetricsSink struct{}

func (MetricsSink) TryPublish(ev Event) bool {
	switch ev.Type {
	case EvAccepted:
		metrics.OrdersTotal.WithLabelValues(sideLabel(ev.Side), metrics.ResultAccepted).Inc()
	case EvRejected:
		// 撤单失败不带 side，不算进下单统计
		if ev.Side.Valid() {
			metrics.OrdersTotal.WithLabelValues(sideLabel(ev.Side), metrics.ResultRejected).Inc()
		}
	case EvTrade:
		metrics.TradesTotal.Inc()
		metrics.TradedQuantityTotal.Add(float64(ev.Qty))
	case EvDropped:
		metrics.DroppedQuantityTotal.Add(float64(ev.Qty))
	}
	return true
}

// observeBook 每批命令后刷新盘口类 gauge
func observeBook(m Market) {
	st := m.Status()
	if st.HasSpread {
		metrics.SpreadPercent.Set(st.SpreadPercent.InexactFloat64())
	} else {
		metrics.SpreadPercent.Set(0)
	}
	bids, asks := m.Depth(1 << 30)
	metrics.BookLevels.WithLabelValues("bid").Set(float64(len(bids)))
	metrics.BookLevels.WithLabelValues("ask").Set(float64(len(asks)))
}

func sideLabel(s matching.Side) string { return strings.ToLower(s.String()) }
