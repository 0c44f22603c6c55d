package queue

import "container/heap"

// heapLoc marks which ordering structure currently holds a message.
type heapLoc int8

const (
	locNone heapLoc = iota
	locReady
	locPending
)

// lessFunc orders two messages within one heap.
type lessFunc func(a, b *Message) bool

func bySequence(a, b *Message) bool {
	return a.EnqueueSequence < b.EnqueueSequence
}

func byPriority(a, b *Message) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.EnqueueSequence < b.EnqueueSequence
}

func byAvailableAt(a, b *Message) bool {
	if a.AvailableAt != b.AvailableAt {
		return a.AvailableAt < b.AvailableAt
	}
	return a.EnqueueSequence < b.EnqueueSequence
}

// msgHeap is a container/heap implementation over messages. It maintains
// each message's heap index so entries can be removed or re-sorted from the
// middle in O(log n).
type msgHeap struct {
	items []*Message
	less  lessFunc
	loc   heapLoc
}

func newMsgHeap(loc heapLoc, less lessFunc) *msgHeap {
	return &msgHeap{less: less, loc: loc}
}

func (h *msgHeap) Len() int { return len(h.items) }

func (h *msgHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }

func (h *msgHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIdx = i
	h.items[j].heapIdx = j
}

func (h *msgHeap) Push(x interface{}) {
	m := x.(*Message)
	m.heapIdx = len(h.items)
	m.heapLoc = h.loc
	h.items = append(h.items, m)
}

func (h *msgHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	m.heapIdx = 0
	m.heapLoc = locNone
	return m
}

// push adds m to the heap.
func (h *msgHeap) push(m *Message) {
	heap.Push(h, m)
}

// peek returns the minimum without removing it, or nil when empty.
func (h *msgHeap) peek() *Message {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// pop removes and returns the minimum, or nil when empty.
func (h *msgHeap) pop() *Message {
	if len(h.items) == 0 {
		return nil
	}
	return heap.Pop(h).(*Message)
}

// remove deletes m from the middle of the heap. It is a no-op when m is not
// held by this heap.
func (h *msgHeap) remove(m *Message) {
	if m.heapLoc != h.loc {
		return
	}
	heap.Remove(h, m.heapIdx)
}

// fix re-sorts m after its ordering key changed in place.
func (h *msgHeap) fix(m *Message) {
	if m.heapLoc != h.loc {
		return
	}
	heap.Fix(h, m.heapIdx)
}
