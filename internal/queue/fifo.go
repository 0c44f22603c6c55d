package queue

// FifoQueue delivers messages strictly by enqueue sequence. A redelivered
// message keeps its original sequence, so it re-enters ahead of anything
// enqueued after it.
type FifoQueue struct {
	*core
}

// NewFifo creates an empty fifo queue.
func NewFifo(name string, opts Options, deps Deps) *FifoQueue {
	return &FifoQueue{core: newCore(name, TypeFifo, opts, bySequence, false, deps)}
}
