package queue

import (
	"errors"
	"sync"
)

// Errors
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)

// Queue is a thread-safe ring buffer that doubles its capacity when it reaches
// 70% occupancy, up to Limit items.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []T
	head  int // read position
	tail  int // write position
	count int
	limit int

	closed bool

	// Stats
	pushed   int64
	popped   int64
	rejected int64
	resizes  int
}

// Stats contains queue statistics.
type Stats struct {
	Len      int
	Cap      int
	Pushed   int64
	Popped   int64
	Rejected int64
	Resizes  int
}

// New creates a queue with the given initial capacity and item limit.
// A limit <= 0 means unbounded.
func New[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	q := &Queue[T]{
		buf:   make([]T, initial),
		limit: limit,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item without blocking.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.limit > 0 && q.count >= q.limit {
		q.rejected++
		return ErrFull
	}

	threshold := (len(q.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold || q.count == len(q.buf) {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.pushed++

	q.cond.Signal()
	return nil
}

// Pop removes the oldest item, blocking until one is available.
// It returns false once the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// TryPop removes the oldest item if one is available.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Drain removes up to max items (all when max <= 0) without blocking.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close rejects further pushes and wakes the consumer. Items already queued
// can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns a snapshot of queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Cap:      len(q.buf),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Rejected: q.rejected,
		Resizes:  q.resizes,
	}
}

// take pops the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) take() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // release reference
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return item
}

// grow doubles the ring. Must be called with lock held.
func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	if size <= len(q.buf) {
		return
	}

	buf := make([]T, size)
	if q.count > 0 {
		if q.head < q.tail {
			copy(buf, q.buf[q.head:q.tail])
		} else {
			n := copy(buf, q.buf[q.head:])
			copy(buf[n:], q.buf[:q.tail])
		}
	}

	q.buf = buf
	q.head = 0
	q.tail = q.count
	q.resizes++
}
