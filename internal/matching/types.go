package matching

import (
	"fmt"
	"strings"
	"time"
)

// Side 买卖方向，封闭的两值枚举
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite 对手方
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// ParseSide 接受 buy/sell，大小写不敏感
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(v) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", v)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// OrderStatus 订单在簿中的状态；Filled/Cancelled 的订单已经不在簿里
type OrderStatus uint8

const (
	StatusActive OrderStatus = iota + 1
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// MaxQty 单笔订单数量上限 2^53；价位聚合量另由 Rest 防溢出
const MaxQty int64 = 1 << 53

// 订单
type Order struct {
	ID        uint64 // 订单id，创建时分配
	Side      Side
	Price     Price     // 限价
	Qty       int64     // 剩余未成交数量
	OrigQty   int64     // 下单时的数量
	Seq       uint64    // 入簿序号，同价位按它排队
	CreatedAt time.Time // 下单时间
}

// Status 根据剩余数量推断状态
func (o *Order) Status() OrderStatus {
	switch {
	case o.Qty <= 0:
		return StatusFilled
	case o.Qty < o.OrigQty:
		return StatusPartiallyFilled
	default:
		return StatusActive
	}
}

// Filled 已成交数量
func (o *Order) Filled() int64 { return o.OrigQty - o.Qty }

func (o *Order) String() string {
	return fmt.Sprintf("Order{ID:%d %s %d/%d@%s}", o.ID, o.Side, o.Qty, o.OrigQty, o.Price)
}

// 成交
type Trade struct {
	ID           uint64
	BuyOrderID   uint64
	SellOrderID  uint64
	MakerOrderID uint64 // 簿中的挂单
	TakerOrderID uint64 // 主动吃单
	Price        Price  // 成交价 = maker 的价格
	Qty          int64
	Time         time.Time
}

// Level 一个价位的聚合
type Level struct {
	Price  Price
	Qty    int64 // 该价位剩余数量之和
	Orders int   // 该价位订单数
}

// IDGen 订单/成交 id 生成器
type IDGen interface {
	NextID() uint64
}
