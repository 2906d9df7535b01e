package engine

import (
	"context"
	"sync/atomic"
)

// ChanBus 带缓冲的事件总线；满了就丢并计数，不阻塞撮合
type ChanBus struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewChanBus(size int) *ChanBus {
	if size <= 0 {
		size = 1 << 12
	}
	return &ChanBus{ch: make(chan Event, size)}
}

func (b *ChanBus) TryPublish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Publish 阻塞投递，ctx 取消时返回
func (b *ChanBus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChanBus) C() <-chan Event { return b.ch }
func (b *ChanBus) Dropped() uint64 { return b.dropped.Load() }
