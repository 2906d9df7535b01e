package engine

import (
	"errors"
	"fmt"

	"marketsim.com/internal/market"
	"marketsim.com/internal/matching"
	"marketsim.com/pkg/xerr"
)

// 命令类型
type CmdType uint8

const (
	CmdPlace  CmdType = iota + 1 // 下单
	CmdCancel                    // 撤单
)

func (t CmdType) String() string {
	switch t {
	case CmdPlace:
		return "place"
	case CmdCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

type Command struct {
	Type    CmdType
	ReqID   uint64 // 上游追踪用，0 则由 actor 分配
	TraceID string // 日志链路

	// place
	Side  matching.Side
	Price matching.Price
	Qty   int64

	// cancel
	CancelOrderID uint64

	reply chan Result // 为空表示调用方不等结果，只看事件
}

// Result 命令的同步结果
type Result struct {
	ReqID     uint64
	Outcome   market.PlacementOutcome // place
	Cancelled *matching.Order         // cancel 成功时是被撤订单的快照
	Err       error
}

type EventType uint8

const (
	EvAccepted  EventType = iota + 1 // 通过校验
	EvRejected                       // 拒单
	EvAdded                          // 挂入订单簿
	EvCancelled                      // 撤单成功
	EvTrade                          // 成交
	EvDropped                        // 剩余数量因价差不足被丢弃
)

func (t EventType) String() string {
	switch t {
	case EvAccepted:
		return "accepted"
	case EvRejected:
		return "rejected"
	case EvAdded:
		return "added"
	case EvCancelled:
		return "cancelled"
	case EvTrade:
		return "trade"
	case EvDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// EventTypes 所有事件类型，按定义顺序
func EventTypes() []EventType {
	out := make([]EventType, 0, int(EvDropped))
	for v := EvAccepted; v <= EvDropped; v++ {
		out = append(out, v)
	}
	return out
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *EventType) UnmarshalText(b []byte) error {
	for v := EvAccepted; v <= EvDropped; v++ {
		if v.String() == string(b) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

type Event struct {
	Type EventType `json:"type"`

	// actor 内单调递增的命令序号，同一命令的事件用 Idx 排序
	Seq   uint64 `json:"seq"`
	Idx   uint16 `json:"idx"`
	ReqID uint64 `json:"req_id"`

	OrderID uint64         `json:"order_id,omitempty"`
	Side    matching.Side  `json:"side,omitempty"`
	Price   matching.Price `json:"price,omitempty"`
	Qty     int64          `json:"qty,omitempty"`

	// trade
	TradeID      uint64 `json:"trade_id,omitempty"`
	MakerOrderID uint64 `json:"maker_order_id,omitempty"`
	TakerOrderID uint64 `json:"taker_order_id,omitempty"`
	TsNano       int64  `json:"ts,omitempty"` // 成交时间 unix nano

	// rejected
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

var (
	ErrEngineBusy  = xerr.NewErrCode(xerr.EngineBusy)
	ErrRateLimited = xerr.NewErrCode(xerr.RateLimited)
	ErrBadCommand  = errors.New("bad command")
	ErrStopped     = errors.New("engine stopped")
)
