package matching

import "container/heap"

// priceHeap 最优价堆：买盘 less 为 >，卖盘 less 为 <。
// 价位桶删除时不动堆（lazy deletion），由 best() 在堆顶遇到空桶时弹出。
// member 保证同一价格在堆里最多一份。
type priceHeap struct {
	prices []Price
	less   func(a, b Price) bool
	member map[Price]struct{}
}

func newPriceHeap(less func(a, b Price) bool) *priceHeap {
	h := &priceHeap{
		prices: make([]Price, 0, 64),
		less:   less,
		member: make(map[Price]struct{}, 64),
	}
	heap.Init(h)
	return h
}

func (h *priceHeap) Len() int           { return len(h.prices) }
func (h *priceHeap) Less(i, j int) bool { return h.less(h.prices[i], h.prices[j]) }
func (h *priceHeap) Swap(i, j int)      { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	p := x.(Price)
	h.prices = append(h.prices, p)
	h.member[p] = struct{}{}
}

func (h *priceHeap) Pop() any {
	n := len(h.prices)
	p := h.prices[n-1]
	h.prices = h.prices[:n-1]
	delete(h.member, p)
	return p
}

// add 新价位出现时入堆
func (h *priceHeap) add(p Price) {
	if _, ok := h.member[p]; ok {
		return
	}
	heap.Push(h, p)
}

// best 返回堆顶仍然存活的价位；live 判断价位桶是否还存在
func (h *priceHeap) best(live func(Price) bool) (Price, bool) {
	for len(h.prices) > 0 {
		p := h.prices[0]
		if live(p) {
			return p, true
		}
		heap.Pop(h)
	}
	return 0, false
}

// compact 去掉所有死价位后重新建堆，O(n)
func (h *priceHeap) compact(live func(Price) bool) {
	kept := h.prices[:0]
	for _, p := range h.prices {
		if live(p) {
			kept = append(kept, p)
		} else {
			delete(h.member, p)
		}
	}
	h.prices = kept
	heap.Init(h)
}

func bidLess(a, b Price) bool { return a > b }
func askLess(a, b Price) bool { return a < b }
