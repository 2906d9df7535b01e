package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketsim.com/internal/matching"
)

var hundred = decimal.NewFromInt(100)

// PlacementOutcome 一次下单的结果
type PlacementOutcome struct {
	OrderID    uint64
	Fills      []matching.Trade // 按成交顺序
	Resting    *matching.Order  // 挂到簿上的剩余部分，nil 表示没有挂单
	DroppedQty int64            // 因价差不足（或簿拒收）被丢弃的剩余数量

	BestBid matching.Price
	HasBid  bool
	BestAsk matching.Price
	HasAsk  bool
}

// RestingID 挂单 id，没有挂单时为 0
func (o PlacementOutcome) RestingID() uint64 {
	if o.Resting == nil {
		return 0
	}
	return o.Resting.ID
}

// FilledQty 本次成交总量
func (o PlacementOutcome) FilledQty() int64 {
	var n int64
	for _, t := range o.Fills {
		n += t.Qty
	}
	return n
}

// MarketStatus 盘口快照，各字段只有 Has* 为 true 时有意义
type MarketStatus struct {
	BestBid matching.Price
	HasBid  bool
	BestAsk matching.Price
	HasAsk  bool

	Spread        matching.Price
	SpreadPercent decimal.Decimal // 4 位小数
	HasSpread     bool
}

type Option func(*Simulator)

// WithClock injects the clock used for order and trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGen injects the order id generator.
func WithIDGen(g matching.IDGen) Option {
	return func(s *Simulator) {
		if g != nil {
			s.orderIDs = g
		}
	}
}

// WithTradeIDGen injects the trade id generator.
func WithTradeIDGen(g matching.IDGen) Option {
	return func(s *Simulator) {
		if g != nil {
			s.tradeIDs = g
		}
	}
}

// Simulator 单品种撮合 + 最小价差约束。
//
// 写操作（下单、撤单）持写锁完成 校验 -> 撮合 -> 挂单 -> 记成交；
// 读操作持读锁，看不到做了一半的状态。
type Simulator struct {
	mu        sync.RWMutex
	book      *matching.OrderBook
	trades    []matching.Trade
	minSpread decimal.Decimal

	orderIDs matching.IDGen
	tradeIDs matching.IDGen
	now      func() time.Time
	last     time.Time
}

// New creates a simulator enforcing minSpreadPercent (1 means 1%). The
// minimum is fixed for the lifetime of the instance.
func New(minSpreadPercent decimal.Decimal, opts ...Option) (*Simulator, error) {
	if minSpreadPercent.IsNegative() || minSpreadPercent.GreaterThanOrEqual(hundred) {
		return nil, fmt.Errorf("min spread percent must be in [0, 100), got %s", minSpreadPercent)
	}
	s := &Simulator{
		minSpread: minSpreadPercent,
		orderIDs:  &matching.Sequence{},
		tradeIDs:  &matching.Sequence{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.book = matching.NewOrderBook(
		matching.WithTradeIDs(s.tradeIDs),
		matching.WithBookClock(s.stamp),
	)
	return s, nil
}

func (s *Simulator) MinSpreadPercent() decimal.Decimal { return s.minSpread }

// PlaceOrder validates, matches and possibly rests a limit order.
//
// 不交叉的订单先按挂单后的盘口检查价差，不满足直接拒绝，簿不变。
// 交叉的订单先撮合，剩余部分只有在挂上去后价差仍满足时才挂，否则丢弃。
func (s *Simulator) PlaceOrder(side matching.Side, price matching.Price, qty int64) (PlacementOutcome, error) {
	switch {
	case !side.Valid():
		return PlacementOutcome{}, fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, side)
	case price <= 0:
		return PlacementOutcome{}, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, price)
	case qty <= 0:
		return PlacementOutcome{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, qty)
	case qty > matching.MaxQty:
		return PlacementOutcome{}, fmt.Errorf("%w: quantity must be at most %d, got %d", ErrInvalidOrder, matching.MaxQty, qty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.crosses(side, price) {
		if err := s.checkSpread(side, price); err != nil {
			return PlacementOutcome{}, err
		}
	}

	o := &matching.Order{
		ID:        s.orderIDs.NextID(),
		Side:      side,
		Price:     price,
		Qty:       qty,
		OrigQty:   qty,
		CreatedAt: s.stamp(),
	}
	out := PlacementOutcome{OrderID: o.ID}

	rest := s.book.Match(o, func(t matching.Trade) {
		out.Fills = append(out.Fills, t)
	})
	if rest > 0 {
		if s.checkSpread(side, price) == nil && s.book.Rest(o) {
			cp := *o
			out.Resting = &cp
		} else {
			out.DroppedQty = rest
		}
	}
	s.trades = append(s.trades, out.Fills...)

	out.BestBid, out.HasBid = s.book.BestBid()
	out.BestAsk, out.HasAsk = s.book.BestAsk()
	return out, nil
}

// CancelOrder removes a resting order. Unknown ids return false.
func (s *Simulator) CancelOrder(orderID uint64) bool {
	_, ok := s.RemoveOrder(orderID)
	return ok
}

// RemoveOrder 撤单，返回被撤订单的快照
func (s *Simulator) RemoveOrder(orderID uint64) (matching.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Remove(orderID)
}

func (s *Simulator) Status() MarketStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st MarketStatus
	st.BestBid, st.HasBid = s.book.BestBid()
	st.BestAsk, st.HasAsk = s.book.BestAsk()
	if st.HasBid && st.HasAsk {
		st.Spread = st.BestAsk - st.BestBid
		st.SpreadPercent = spreadPercent(st.BestBid, st.BestAsk).Round(4)
		st.HasSpread = true
	}
	return st
}

// TradeHistory 全部成交，按发生顺序，返回副本
func (s *Simulator) TradeHistory() []matching.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]matching.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// RecentTrades 最近 n 笔，最新的在前
func (s *Simulator) RecentTrades(n int) []matching.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return []matching.Trade{}
	}
	n = min(n, len(s.trades))
	out := make([]matching.Trade, 0, n)
	for i := len(s.trades) - 1; i >= len(s.trades)-n; i-- {
		out = append(out, s.trades[i])
	}
	return out
}

func (s *Simulator) Depth(levels int) (bids, asks []matching.Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Depth(levels)
}

func (s *Simulator) Order(orderID uint64) (matching.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Order(orderID)
}

// RestingOrders 当前挂单数
func (s *Simulator) RestingOrders() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Len()
}

func (s *Simulator) crosses(side matching.Side, price matching.Price) bool {
	if side == matching.Buy {
		ask, ok := s.book.BestAsk()
		return ok && price >= ask
	}
	bid, ok := s.book.BestBid()
	return ok && price <= bid
}

// checkSpread 假设 price 挂到 side 一侧后的盘口是否满足最小价差
func (s *Simulator) checkSpread(side matching.Side, price matching.Price) error {
	bid, hasBid := s.book.BestBid()
	ask, hasAsk := s.book.BestAsk()
	if side == matching.Buy {
		if !hasBid || price > bid {
			bid, hasBid = price, true
		}
	} else {
		if !hasAsk || price < ask {
			ask, hasAsk = price, true
		}
	}
	if !hasBid || !hasAsk {
		return nil
	}
	// (ask-bid)*100 >= min*ask，交叉相乘避免除法误差
	lhs := ask.Decimal().Sub(bid.Decimal()).Mul(hundred)
	if lhs.GreaterThanOrEqual(s.minSpread.Mul(ask.Decimal())) {
		return nil
	}
	return fmt.Errorf("%w: %s at %s leaves spread %s%% (bid %s / ask %s), minimum %s%%",
		ErrSpreadViolation, side, price,
		spreadPercent(bid, ask).StringFixed(2), bid, ask, s.minSpread.String())
}

// stamp 时间戳不回退，调用方持写锁
func (s *Simulator) stamp() time.Time {
	t := s.now()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func spreadPercent(bid, ask matching.Price) decimal.Decimal {
	return ask.Decimal().Sub(bid.Decimal()).Div(ask.Decimal()).Mul(hundred)
}
