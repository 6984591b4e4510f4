// Package mailbox provides a fixed-size single-producer, single-consumer queue.
//
// It is designed for bare-metal use: no allocations after construction, and the
// producer may run in handler context while the consumer runs in a thread.
package mailbox

import (
	"runtime"
	"sync/atomic"
)

// Slots is the capacity of every mailbox.
const Slots = 64

// Mailbox is a fixed-size SPSC ring of values.
type Mailbox[T any] struct {
	_       [0]func() // prevent accidental copying.
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
	slots   [Slots]T
}

// TrySend attempts to enqueue v, returning false if the mailbox is full.
func (mb *Mailbox[T]) TrySend(v T) bool {
	head := mb.head.Load()
	tail := mb.tail.Load()
	if head-tail >= Slots {
		mb.dropped.Add(1)
		return false
	}

	mb.slots[head%Slots] = v
	// Publish only after the slot is written.
	mb.head.Store(head + 1)
	return true
}

// Send enqueues v, spinning until there is room.
func (mb *Mailbox[T]) Send(v T) {
	for !mb.TrySend(v) {
		runtime.Gosched()
	}
}

// TryRecv attempts to dequeue one value, returning false if empty.
func (mb *Mailbox[T]) TryRecv() (T, bool) {
	tail := mb.tail.Load()
	head := mb.head.Load()
	if tail == head {
		var zero T
		return zero, false
	}

	v := mb.slots[tail%Slots]
	mb.tail.Store(tail + 1)
	return v, true
}

// Len reports the number of queued values.
func (mb *Mailbox[T]) Len() int {
	return int(mb.head.Load() - mb.tail.Load())
}

// Dropped reports how many TrySend calls failed because the mailbox was full.
func (mb *Mailbox[T]) Dropped() uint32 {
	return mb.dropped.Load()
}
