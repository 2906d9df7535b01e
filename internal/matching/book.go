package matching

import (
	"math"
	"sort"
	"sync/atomic"
	"time"
)

// Sequence 单调递增的 id 生成器，从 1 开始；并发安全
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) NextID() uint64 { return s.n.Add(1) }

// Last 最近一次分配的 id
func (s *Sequence) Last() uint64 { return s.n.Load() }

// OrderBook 单品种限价订单簿，价格优先、时间优先。
//
// 买卖两侧各是 price -> 价位桶 的 map，加一个最优价堆；byID 做 O(1) 撤单。
// OrderBook 本身不加锁，由上层保证单写者。
type OrderBook struct {
	bids map[Price]*priceLevel // 买盘
	asks map[Price]*priceLevel // 卖盘
	byID map[uint64]*lvNode    // orderID -> node
	bidH *priceHeap
	askH *priceHeap
	seq  uint64 // 入簿序号
	ids  IDGen  // 成交 id
	now  func() time.Time
}

type BookOption func(*OrderBook)

// WithTradeIDs sets the generator used for trade ids.
func WithTradeIDs(g IDGen) BookOption {
	return func(b *OrderBook) {
		if g != nil {
			b.ids = g
		}
	}
}

// WithBookClock sets the clock used to stamp trades.
func WithBookClock(now func() time.Time) BookOption {
	return func(b *OrderBook) {
		if now != nil {
			b.now = now
		}
	}
}

func NewOrderBook(opts ...BookOption) *OrderBook {
	b := &OrderBook{
		bids: make(map[Price]*priceLevel, 256),
		asks: make(map[Price]*priceLevel, 256),
		byID: make(map[uint64]*lvNode, 1024),
		bidH: newPriceHeap(bidLess),
		askH: newPriceHeap(askLess),
		ids:  &Sequence{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit matches o against the opposite side and rests any remainder on o's
// own side. fills holds one trade per match step in execution order; resting
// is a copy of the rested remainder, or nil when o was fully filled.
// dropped is the remainder Rest refused (duplicate id, level overflow).
// o is owned by the book afterwards.
func (b *OrderBook) Submit(o *Order) (fills []Trade, resting *Order, dropped int64) {
	rest := b.Match(o, func(t Trade) {
		fills = append(fills, t)
	})
	if rest > 0 {
		if !b.Rest(o) {
			return fills, nil, rest
		}
		cp := *o
		resting = &cp
	}
	return fills, resting, 0
}

// Match 只撮合不挂单，返回剩余数量，由上层决定挂单还是丢弃。
// 非法的 taker（数量/价格非正、方向未知）直接返回 0，不产生成交。
func (b *OrderBook) Match(taker *Order, emit func(Trade)) (rest int64) {
	if taker == nil || taker.Qty <= 0 || taker.Price <= 0 || !taker.Side.Valid() {
		return 0
	}
	if emit == nil {
		emit = func(Trade) {}
	}
	if taker.OrigQty == 0 {
		taker.OrigQty = taker.Qty
	}

	levels, h := b.asks, b.askH
	crosses := func(p Price) bool { return p <= taker.Price }
	if taker.Side == Sell {
		levels, h = b.bids, b.bidH
		crosses = func(p Price) bool { return p >= taker.Price }
	}

	for taker.Qty > 0 {
		bestP, ok := h.best(b.liveIn(levels))
		if !ok || !crosses(bestP) {
			break
		}
		lv := levels[bestP]

		// 从桶头开始吃，FIFO
		for taker.Qty > 0 && !lv.empty() {
			mn := lv.head
			maker := mn.order
			exec := min(taker.Qty, maker.Qty)

			emit(b.newTrade(taker, maker, lv.price, exec))

			taker.Qty -= exec
			maker.Qty -= exec
			lv.qty -= exec

			// maker 吃完了：摘链，删索引，归还节点
			if maker.Qty == 0 {
				lv.remove(mn)
				delete(b.byID, maker.ID)
				putNode(mn)
			}
		}
		if lv.empty() {
			delete(levels, lv.price) // 堆里的价格留给 prune 处理
		}
	}
	b.prune()
	return taker.Qty
}

// Rest 把订单挂到自己一侧的队尾，分配新的入簿序号。
// 重复 id、非法订单、会让价位聚合量溢出的订单返回 false。
func (b *OrderBook) Rest(o *Order) bool {
	if o == nil || o.Qty <= 0 || o.Price <= 0 || !o.Side.Valid() {
		return false
	}
	if _, exists := b.byID[o.ID]; exists {
		return false
	}
	levels, h := b.bids, b.bidH
	if o.Side == Sell {
		levels, h = b.asks, b.askH
	}
	lv := levels[o.Price]
	if lv != nil && lv.qty > math.MaxInt64-o.Qty {
		return false
	}
	if o.OrigQty < o.Qty {
		o.OrigQty = o.Qty
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = b.now()
	}
	b.seq++
	o.Seq = b.seq

	if lv == nil {
		lv = &priceLevel{price: o.Price}
		levels[o.Price] = lv
		h.add(o.Price)
	}
	n := getNode(o, lv)
	lv.pushBack(n)
	b.byID[o.ID] = n
	return true
}

// Cancel removes a resting order by id. Absent ids are a no-op.
func (b *OrderBook) Cancel(orderID uint64) bool {
	_, ok := b.Remove(orderID)
	return ok
}

// Remove 撤单并返回被撤订单的快照
func (b *OrderBook) Remove(orderID uint64) (Order, bool) {
	n := b.byID[orderID]
	if n == nil {
		return Order{}, false
	}
	lv := n.lv
	o := *n.order
	lv.remove(n)
	delete(b.byID, orderID)
	putNode(n)

	if lv.empty() {
		if o.Side == Sell {
			delete(b.asks, lv.price)
		} else {
			delete(b.bids, lv.price)
		}
		b.prune()
	}
	return o, true
}

// BestBid 当前最高买价
func (b *OrderBook) BestBid() (Price, bool) {
	return peekLive(b.bidH, b.bids)
}

// BestAsk 当前最低卖价
func (b *OrderBook) BestAsk() (Price, bool) {
	return peekLive(b.askH, b.asks)
}

// Depth returns up to levels distinct price levels per side in priority order
// with aggregated quantity. It does not mutate the book.
func (b *OrderBook) Depth(levels int) (bids, asks []Level) {
	return collectDepth(b.bids, bidLess, levels), collectDepth(b.asks, askLess, levels)
}

// Order 查询挂单快照
func (b *OrderBook) Order(orderID uint64) (Order, bool) {
	n := b.byID[orderID]
	if n == nil {
		return Order{}, false
	}
	return *n.order, true
}

// Len 挂单数量
func (b *OrderBook) Len() int { return len(b.byID) }

func (b *OrderBook) newTrade(taker, maker *Order, price Price, qty int64) Trade {
	t := Trade{
		ID:           b.ids.NextID(),
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		Price:        price,
		Qty:          qty,
		Time:         b.now(),
	}
	if taker.Side == Buy {
		t.BuyOrderID, t.SellOrderID = taker.ID, maker.ID
	} else {
		t.BuyOrderID, t.SellOrderID = maker.ID, taker.ID
	}
	return t
}

// compactSlack 堆里允许的死价位余量
const compactSlack = 64

func (b *OrderBook) liveIn(levels map[Price]*priceLevel) func(Price) bool {
	return func(p Price) bool {
		lv := levels[p]
		return lv != nil && !lv.empty()
	}
}

// prune 每次写操作结束时清掉堆顶的过期价位，读路径只 peek 不改堆。
// 堆里的死价位远多于存活价位时整体重建，深处的死价位不会一直堆积。
func (b *OrderBook) prune() {
	b.bidH.best(b.liveIn(b.bids))
	b.askH.best(b.liveIn(b.asks))
	if b.bidH.Len() > compactSlack+2*len(b.bids) {
		b.bidH.compact(b.liveIn(b.bids))
	}
	if b.askH.Len() > compactSlack+2*len(b.asks) {
		b.askH.compact(b.liveIn(b.asks))
	}
}

func peekLive(h *priceHeap, levels map[Price]*priceLevel) (Price, bool) {
	if h.Len() == 0 {
		return 0, false
	}
	p := h.prices[0]
	if lv := levels[p]; lv == nil || lv.empty() {
		return 0, false
	}
	return p, true
}

func collectDepth(side map[Price]*priceLevel, less func(a, b Price) bool, n int) []Level {
	if n <= 0 {
		return []Level{}
	}
	prices := make([]Price, 0, len(side))
	for p, lv := range side {
		if lv != nil && !lv.empty() {
			prices = append(prices, p)
		}
	}
	sort.Slice(prices, func(i, j int) bool { return less(prices[i], prices[j]) })
	if len(prices) > n {
		prices = prices[:n]
	}
	out := make([]Level, 0, len(prices))
	for _, p := range prices {
		lv := side[p]
		out = append(out, Level{Price: p, Qty: lv.qty, Orders: int(lv.size)})
	}
	return out
}
