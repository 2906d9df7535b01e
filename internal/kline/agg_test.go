package kline

import (
	"testing"
	"time"

	"marketsim.com/internal/matching"
)

var px = matching.MustPrice

func trade(ms int64, price string, qty int64) matching.Trade {
	return matching.Trade{Price: px(price), Qty: qty, Time: time.UnixMilli(ms)}
}

func TestKline_BucketStartMs(t *testing.T) {
	intervalMs := int64(time.Hour / time.Millisecond)
	offsetMs := int64(30 * time.Minute / time.Millisecond)

	t.Run("offset_alignment", func(t *testing.T) {
		if got := bucketStartMs(0, intervalMs, offsetMs); got != -offsetMs {
			t.Fatalf("want=%d got=%d", -offsetMs, got)
		}
	})
	t.Run("next_bucket", func(t *testing.T) {
		ts := int64(31 * time.Minute / time.Millisecond)
		want := int64(30 * time.Minute / time.Millisecond)
		if got := bucketStartMs(ts, intervalMs, offsetMs); got != want {
			t.Fatalf("want=%d got=%d", want, got)
		}
	})
	t.Run("negative_floor", func(t *testing.T) {
		if got := bucketStartMs(-1, 1000, 0); got != -1000 {
			t.Fatalf("want=-1000 got=%d", got)
		}
	})
}

func TestKline_TradeAgg_SameBucket(t *testing.T) {
	var emitted []Bar
	agg := NewTradeAgg(time.Second, 0, func(b Bar) { emitted = append(emitted, b) })

	agg.OfferTrade(trade(1500, "100", 1))
	agg.OfferTrade(trade(1700, "99.50", 4))
	agg.OfferTrade(trade(1999, "101", 2))
	if len(emitted) != 0 {
		t.Fatalf("should not emit until bucket switches/flush, got=%d", len(emitted))
	}

	agg.Flush()
	if len(emitted) != 1 {
		t.Fatalf("flush should emit 1 bar, got=%d", len(emitted))
	}
	b := emitted[0]
	if b.StartMs != 1000 || b.EndMs != 2000 {
		t.Fatalf("bucket range want [1000,2000) got [%d,%d)", b.StartMs, b.EndMs)
	}
	if b.Open != px("100") || b.High != px("101") || b.Low != px("99.50") || b.Close != px("101") {
		t.Fatalf("OHLC mismatch: %s", b)
	}
	if b.Volume != 7 || b.Count != 3 {
		t.Fatalf("volume/count mismatch: %s", b)
	}

	agg.Flush()
	if len(emitted) != 1 {
		t.Fatalf("second flush must be a no-op")
	}
}

func TestKline_TradeAgg_NewBucket_EmitsPrevious(t *testing.T) {
	var emitted []Bar
	agg := NewTradeAgg(time.Second, 0, func(b Bar) { emitted = append(emitted, b) })

	agg.OfferTrade(trade(1500, "10", 1))
	agg.OfferTrade(trade(2500, "11", 1))
	if len(emitted) != 1 || emitted[0].StartMs != 1000 {
		t.Fatalf("should emit previous bar on bucket switch, got=%v", emitted)
	}
	agg.Flush()
	if len(emitted) != 2 || emitted[1].StartMs != 2000 || emitted[1].EndMs != 3000 {
		t.Fatalf("flush should emit current bar, got=%v", emitted)
	}
}

func TestKline_TradeAgg_LateTrade_Dropped(t *testing.T) {
	var emitted []Bar
	agg := NewTradeAgg(time.Second, 0, func(b Bar) { emitted = append(emitted, b) })

	agg.OfferTrade(trade(2500, "100", 1))
	agg.OfferTrade(trade(1500, "1", 1)) // 更早的桶，合并进来会把 low 拉到 1
	agg.Flush()

	if len(emitted) != 1 || emitted[0].Low != px("100") {
		t.Fatalf("late trade should be dropped, got=%v", emitted)
	}
	if agg.LateDrops() != 1 {
		t.Fatalf("late drops want=1 got=%d", agg.LateDrops())
	}
}

func TestKline_RollupAgg_MinuteFromSeconds(t *testing.T) {
	var emitted []Bar
	agg := NewRollupAgg(time.Minute, 0, false, func(b Bar) { emitted = append(emitted, b) })

	agg.OfferBar(Bar{StartMs: 0, EndMs: 1000, Open: px("100"), High: px("101"), Low: px("99"), Close: px("100"), Volume: 1, Count: 10})
	agg.OfferBar(Bar{StartMs: 1000, EndMs: 2000, Open: px("100"), High: px("105"), Low: px("98"), Close: px("104"), Volume: 2, Count: 12})
	if len(emitted) != 0 {
		t.Fatalf("should not emit until bucket switches/flush, got=%d", len(emitted))
	}
	agg.OfferBar(Bar{StartMs: 60000, EndMs: 61000, Open: px("200"), High: px("200"), Low: px("200"), Close: px("200"), Volume: 1, Count: 1})

	if len(emitted) != 1 {
		t.Fatalf("should emit 1 minute bar, got=%d", len(emitted))
	}
	b := emitted[0]
	if b.StartMs != 0 || b.EndMs != 60000 {
		t.Fatalf("minute range mismatch: [%d,%d)", b.StartMs, b.EndMs)
	}
	if b.Open != px("100") || b.Close != px("104") || b.High != px("105") || b.Low != px("98") {
		t.Fatalf("merge mismatch: %s", b)
	}
	if b.Volume != 3 || b.Count != 2 {
		t.Fatalf("volume/count mismatch: %s", b)
	}

	agg.Flush()
	if len(emitted) != 2 || emitted[1].StartMs != 60000 || emitted[1].EndMs != 120000 {
		t.Fatalf("flush should emit current minute, got=%v", emitted)
	}
}

func TestKline_RollupAgg_FillGaps(t *testing.T) {
	var emitted []Bar
	agg := NewRollupAgg(time.Second, 0, true, func(b Bar) { emitted = append(emitted, b) })
	agg.OfferBar(Bar{StartMs: 0, Open: px("100"), High: px("100"), Low: px("100"), Close: px("101"), Volume: 1})
	agg.OfferBar(Bar{StartMs: 3000, Open: px("99"), High: px("99"), Low: px("99"), Close: px("99"), Volume: 1})
	agg.Flush()

	if len(emitted) != 4 {
		t.Fatalf("want 4 bars (1 real, 2 gaps, 1 real), got=%d", len(emitted))
	}
	for i, start := range []int64{1000, 2000} {
		g := emitted[i+1]
		if g.StartMs != start || g.Open != px("101") || g.Close != px("101") || g.Volume != 0 || g.Count != 0 {
			t.Fatalf("gap bar %d mismatch: %s", i, g)
		}
	}
}

func TestBuild(t *testing.T) {
	trades := []matching.Trade{
		trade(60_000, "100", 3),
		trade(61_000, "102", 2),
		trade(185_000, "101", 1),
	}

	bars := Build(trades, time.Minute, false)
	if len(bars) != 2 {
		t.Fatalf("want 2 bars, got=%d", len(bars))
	}
	if bars[0].Volume != 5 || bars[0].Count != 2 || bars[0].High != px("102") {
		t.Fatalf("first bar mismatch: %s", bars[0])
	}

	filled := Build(trades, time.Minute, true)
	if len(filled) != 3 {
		t.Fatalf("want 3 bars with gap, got=%d", len(filled))
	}
	if filled[0].Count != 2 || filled[1].Count != 0 || filled[1].Close != px("102") || filled[2].StartMs != 180_000 {
		t.Fatalf("filled bars mismatch: %v", filled)
	}

	if Build(nil, time.Minute, true) != nil || Build(trades, 0, false) != nil {
		t.Fatalf("empty input or bad interval should give nil")
	}
}
