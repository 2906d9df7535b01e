package kline

import (
	"fmt"
	"time"

	"marketsim.com/internal/matching"
)

// Bar K 线（OHLCV），覆盖 [StartMs, EndMs)
// Count：TradeAgg 里是成交笔数，RollupAgg 里是合并的子 bar 数（补的空 K 为 0）
type Bar struct {
	Interval time.Duration `json:"interval"`
	StartMs  int64         `json:"start_ms"`
	EndMs    int64         `json:"end_ms"`

	Open  matching.Price `json:"open"`
	High  matching.Price `json:"high"`
	Low   matching.Price `json:"low"`
	Close matching.Price `json:"close"`

	Volume int64 `json:"volume"`
	Count  int64 `json:"count"`
}

func (b Bar) Start() time.Time { return time.UnixMilli(b.StartMs).UTC() }

func (b Bar) String() string {
	return fmt.Sprintf("%s [%d,%d) O=%s H=%s L=%s C=%s V=%d n=%d",
		b.Interval, b.StartMs, b.EndMs, b.Open, b.High, b.Low, b.Close, b.Volume, b.Count)
}

// TradeAgg 维护当前正在构建的那一根 bar。
// 新桶到来先 emit 旧 bar；比当前桶更早的成交丢弃并计数。
type TradeAgg struct {
	intervalMs int64
	offsetMs   int64 // 桶对齐偏移，0 表示按 UTC
	cur        *Bar
	emit       func(Bar)
	lateDrops  int64
}

func NewTradeAgg(interval, tzOffset time.Duration, emit func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalMs: int64(interval / time.Millisecond),
		offsetMs:   int64(tzOffset / time.Millisecond),
		emit:       emit,
	}
}

func (a *TradeAgg) LateDrops() int64 { return a.lateDrops }

func (a *TradeAgg) OfferTrade(t matching.Trade) {
	ts := t.Time.UnixMilli()
	bs := bucketStartMs(ts, a.intervalMs, a.offsetMs)

	if a.cur != nil {
		switch {
		case bs < a.cur.StartMs:
			a.lateDrops++
			return
		case bs > a.cur.StartMs:
			a.emit(*a.cur)
			a.cur = nil
		}
	}
	if a.cur == nil {
		a.cur = &Bar{
			Interval: time.Duration(a.intervalMs) * time.Millisecond,
			StartMs:  bs,
			EndMs:    bs + a.intervalMs,
			Open:     t.Price,
			High:     t.Price,
			Low:      t.Price,
			Close:    t.Price,
			Volume:   t.Qty,
			Count:    1,
		}
		return
	}
	a.cur.High = max(a.cur.High, t.Price)
	a.cur.Low = min(a.cur.Low, t.Price)
	a.cur.Close = t.Price
	a.cur.Volume += t.Qty
	a.cur.Count++
}

// Flush 输出正在构建的 bar
func (a *TradeAgg) Flush() {
	if a.cur != nil && a.cur.Count > 0 {
		a.emit(*a.cur)
	}
	a.cur = nil
}

// RollupAgg 低周期 bar 合成高周期 bar（1m -> 1h 等）。
// fillGaps 时，中间没有成交的桶补一根 OHLC=上一根 close、量为 0 的空 K。
type RollupAgg struct {
	intervalMs int64
	offsetMs   int64
	cur        *Bar
	emit       func(Bar)
	fillGaps   bool
}

func NewRollupAgg(interval, tzOffset time.Duration, fillGaps bool, emit func(Bar)) *RollupAgg {
	return &RollupAgg{
		intervalMs: int64(interval / time.Millisecond),
		offsetMs:   int64(tzOffset / time.Millisecond),
		emit:       emit,
		fillGaps:   fillGaps,
	}
}

func (a *RollupAgg) OfferBar(child Bar) {
	bs := bucketStartMs(child.StartMs, a.intervalMs, a.offsetMs)
	if a.cur != nil {
		if bs < a.cur.StartMs {
			return
		}
		if bs == a.cur.StartMs {
			a.cur.High = max(a.cur.High, child.High)
			a.cur.Low = min(a.cur.Low, child.Low)
			a.cur.Close = child.Close
			a.cur.Volume += child.Volume
			a.cur.Count++
			return
		}
		prev := *a.cur
		a.emit(prev)
		if a.fillGaps {
			for next := prev.EndMs; next < bs; next += a.intervalMs {
				a.emit(a.flat(next, prev.Close))
			}
		}
	}
	a.cur = &Bar{
		Interval: time.Duration(a.intervalMs) * time.Millisecond,
		StartMs:  bs,
		EndMs:    bs + a.intervalMs,
		Open:     child.Open,
		High:     child.High,
		Low:      child.Low,
		Close:    child.Close,
		Volume:   child.Volume,
		Count:    1,
	}
}

func (a *RollupAgg) Flush() {
	if a.cur != nil {
		a.emit(*a.cur)
	}
	a.cur = nil
}

func (a *RollupAgg) flat(start int64, px matching.Price) Bar {
	return Bar{
		Interval: time.Duration(a.intervalMs) * time.Millisecond,
		StartMs:  start,
		EndMs:    start + a.intervalMs,
		Open:     px, High: px, Low: px, Close: px,
	}
}

// Build 把按时间排好序的成交聚合成 bar；fillGaps 时补齐中间的空桶
func Build(trades []matching.Trade, interval time.Duration, fillGaps bool) []Bar {
	if interval < time.Millisecond || len(trades) == 0 {
		return nil
	}
	var out []Bar
	collect := func(b Bar) { out = append(out, b) }

	var sink func(Bar) = collect
	var roll *RollupAgg
	if fillGaps {
		// 同周期 rollup 只负责补空 K
		roll = NewRollupAgg(interval, 0, true, collect)
		sink = func(b Bar) {
			n := b.Count
			roll.OfferBar(b)
			roll.cur.Count = n
		}
	}
	agg := NewTradeAgg(interval, 0, sink)
	for _, t := range trades {
		agg.OfferTrade(t)
	}
	agg.Flush()
	if roll != nil {
		roll.Flush()
	}
	return out
}

// bucketStartMs ((ts+off)/interval)*interval - off，负数向下取整
func bucketStartMs(tsMs, intervalMs, offsetMs int64) int64 {
	x := tsMs + offsetMs
	q := x / intervalMs
	if x < 0 && x%intervalMs != 0 {
		q--
	}
	return q*intervalMs - offsetMs
}
