package queue

// DelayedQueue holds messages invisible until their availableAt passes, then
// delivers fifo among the eligible. Not-yet-due messages wait in the pending
// heap keyed on (availableAt, sequence); promotion happens at dequeue entry
// and during maintenance sweeps. Delays are mutable while a message is still
// available.
type DelayedQueue struct {
	*core
}

// NewDelayed creates an empty delayed queue.
func NewDelayed(name string, opts Options, deps Deps) *DelayedQueue {
	return &DelayedQueue{core: newCore(name, TypeDelayed, opts, bySequence, true, deps)}
}
