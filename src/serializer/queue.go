package serializer

import (
	"container/heap"
	"sync/atomic"

	"gorm.io/gorm"
)

// Priority orders jobs in the queue. Lower values run first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityLedger
	PriorityOrders
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityLedger:
		return "ledger"
	case PriorityOrders:
		return "orders"
	default:
		return "background"
	}
}

const (
	stateQueued int32 = iota
	stateRunning
	stateCancelled
)

type job struct {
	priority Priority
	seq      uint64
	name     string
	fn       func(tx *gorm.DB) error
	state    atomic.Int32
	result   chan error
}

// jobHeap implements heap.Interface, ordered by priority then submission order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*jobHeap)(nil)
