package core

/*------------------------------------------------------------------
 *
 * Purpose:	Lock-free single-producer/single-consumer ring queues used
 *		to carry events between the audio domain and the control
 *		domain without either side ever blocking.
 *
 * Description:	Generalizes the teacher's tq.go transmit-queue discipline
 *		(one queue per concern, drop-and-count on overflow) from its
 *		mutex+condvar implementation to the wait-free barrier
 *		protocol spec.md 4.1 requires: an explicit release on the
 *		producer side (store payload, then publish the write index)
 *		and an explicit acquire on the consumer side (load the write
 *		index, then read the payload).
 *
 *		Exactly one producer and one consumer per queue. Crossing
 *		producers or consumers requires a different queue instance.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

// Queue is a fixed-capacity SPSC ring buffer of T. Capacity must be a power
// of two; NewQueue rounds up if it isn't.
type Queue[T any] struct {
	buf  []T
	mask uint32

	writeIdx atomic.Uint32 // producer-owned; published via Store after payload write
	readIdx  atomic.Uint32 // consumer-owned; published via Store after payload read

	drops atomic.Uint64
}

// NewQueue allocates a queue of the given capacity (rounded up to the next
// power of two, minimum 2).
func NewQueue[T any](capacity int) *Queue[T] {
	var cap = nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Queue[T]{
		buf:  make([]T, cap),
		mask: uint32(cap - 1),
	}
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	var p = 1
	for p < n {
		p <<= 1
	}
	return p
}

// Post enqueues payload. It never blocks: if the queue is full, the payload
// is dropped and the drop counter is incremented. Returns true on success.
//
// Producer-only. Must be called from the single assigned producer goroutine.
func (q *Queue[T]) Post(payload T) bool {
	var w = q.writeIdx.Load()
	var r = q.readIdx.Load() // acquire: see consumer's most recent progress
	var next = (w + 1) & q.mask

	if next == r {
		q.drops.Add(1)
		return false
	}

	q.buf[w&q.mask] = payload // store payload
	q.writeIdx.Store(next)    // release: publish payload visibility with index advance
	return true
}

// Get dequeues the oldest payload. Returns false if the queue is empty.
//
// Consumer-only. Must be called from the single assigned consumer goroutine.
func (q *Queue[T]) Get() (T, bool) {
	var r = q.readIdx.Load()
	var w = q.writeIdx.Load() // acquire: see producer's most recent publish

	if r == w {
		var zero T
		return zero, false
	}

	var v = q.buf[r&q.mask] // load payload, ordered after the acquire above
	q.readIdx.Store((r + 1) & q.mask)
	return v, true
}

// Depth is an advisory occupancy count; may be stale by the time the caller
// observes it since the other side keeps moving.
func (q *Queue[T]) Depth() int {
	var w = q.writeIdx.Load()
	var r = q.readIdx.Load()
	return int((w - r) & q.mask)
}

// Capacity returns the usable capacity (one less than the backing array,
// since a full ring is distinguished from empty by leaving one slot open).
func (q *Queue[T]) Capacity() int {
	return int(q.mask)
}

// Drops returns the number of payloads dropped for being posted to a full
// queue, since the queue was created.
func (q *Queue[T]) Drops() uint64 {
	return q.drops.Load()
}
