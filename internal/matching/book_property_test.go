package matching

import (
	"testing"

	"pgregory.net/rapid"
)

// 随机下单/撤单序列：每次写操作之后簿都不能交叉，数量守恒
func TestProperty_BookNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewOrderBook()
		var nextID uint64
		resting := map[uint64]bool{}

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(resting) > 0 && rapid.IntRange(0, 4).Draw(t, "op") == 0 {
				ids := make([]uint64, 0, len(resting))
				for id := range resting {
					ids = append(ids, id)
				}
				id := rapid.SampledFrom(ids).Draw(t, "cancelID")
				if !b.Cancel(id) {
					t.Fatalf("cancel of resting order %d failed", id)
				}
				delete(resting, id)
				continue
			}

			nextID++
			side := rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side")
			price := Price(rapid.Int64Range(95, 105).Draw(t, "price") * PriceScale)
			qty := rapid.Int64Range(1, 20).Draw(t, "qty")
			o := &Order{ID: nextID, Side: side, Price: price, Qty: qty}

			var filled int64
			fills, rest, _ := b.Submit(o)
			for _, f := range fills {
				filled += f.Qty
				if side == Buy && f.Price > price {
					t.Fatalf("buy filled above its limit: %v > %v", f.Price, price)
				}
				if side == Sell && f.Price < price {
					t.Fatalf("sell filled below its limit: %v < %v", f.Price, price)
				}
				if o, ok := b.Order(f.MakerOrderID); !ok {
					delete(resting, f.MakerOrderID)
				} else if o.Qty <= 0 {
					t.Fatalf("zero-qty order %d still resting", o.ID)
				}
			}
			var restQty int64
			if rest != nil {
				restQty = rest.Qty
				resting[rest.ID] = true
			}
			if filled+restQty != qty {
				t.Fatalf("qty not conserved: filled=%d rest=%d orig=%d", filled, restQty, qty)
			}

			bid, hasBid := b.BestBid()
			ask, hasAsk := b.BestAsk()
			if hasBid && hasAsk && bid >= ask {
				t.Fatalf("book crossed: bid %v >= ask %v", bid, ask)
			}
			if b.Len() != len(resting) {
				t.Fatalf("resting count mismatch: book=%d model=%d", b.Len(), len(resting))
			}
		}
	})
}
