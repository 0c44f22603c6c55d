package queue

// PriorityQueue delivers higher-priority messages first; ties break by
// enqueue sequence so equal priorities stay fifo. The ready heap keys on
// (-priority, sequence), keeping selection O(log n).
type PriorityQueue struct {
	*core
}

// NewPriority creates an empty priority queue.
func NewPriority(name string, opts Options, deps Deps) *PriorityQueue {
	return &PriorityQueue{core: newCore(name, TypePriority, opts, byPriority, false, deps)}
}
