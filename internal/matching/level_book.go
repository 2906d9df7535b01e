package matching

import "sync"

// 一个价位桶：同价订单按到达顺序挂在双向链表上
type priceLevel struct {
	price Price   // 价格
	head  *lvNode // 头部指针，最早的订单
	tail  *lvNode // 尾部指针
	size  int64   // 订单数
	qty   int64   // 桶内剩余数量之和
}

// 双向链表节点
type lvNode struct {
	prev  *lvNode
	next  *lvNode
	order *Order
	lv    *priceLevel // 所属的价格桶
}

// 节点复用
var lvNodePool = sync.Pool{
	New: func() any {
		return new(lvNode)
	},
}

// 追加到队尾 => 同价时间优先
func (l *priceLevel) pushBack(n *lvNode) {
	n.prev, n.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
	l.qty += n.order.Qty
}

// 摘链，O(1)
func (l *priceLevel) remove(n *lvNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.size--
	l.qty -= n.order.Qty
}

func (l *priceLevel) empty() bool {
	return l.size == 0
}

func getNode(order *Order, lv *priceLevel) *lvNode {
	n := lvNodePool.Get().(*lvNode)
	// pool 取出来可能带着旧值
	n.prev, n.next = nil, nil
	n.order = order
	n.lv = lv
	return n
}

func putNode(n *lvNode) {
	if n == nil {
		return
	}
	n.prev, n.next = nil, nil
	n.order = nil
	n.lv = nil
	lvNodePool.Put(n)
}
