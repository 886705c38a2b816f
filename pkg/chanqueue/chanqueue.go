package chanqueue

import (
	"context"
	"sync"

	"github.com/i5heu/GoProducerConsumer/internal/queue"
)

// Queue is an unbounded FIFO where every parked Pop owns a one-slot wake-up
// channel. Push hands its wake-up to the oldest parked Pop, so cancellation
// is a plain select instead of a condition variable broadcast.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	waiters []chan struct{}
	closed  bool
	done    chan struct{}
}

var _ queue.Queue[int] = (*Queue[int])(nil)

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		done: make(chan struct{}),
	}
}

// Push appends val and hands a wake-up to the oldest parked Pop.
func (q *Queue[T]) Push(val T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, val)
	q.wakeOne()
}

// Pop removes and returns the head of the queue, parking while it is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	q.mu.Lock()
	for {
		// A woken waiter takes the element before looking at ctx, so the
		// wake-up it consumed is never dropped.
		if len(q.items) > q.head {
			val := q.items[q.head]
			q.items[q.head] = zero
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			q.mu.Unlock()
			return val, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, queue.ErrClosed
		}
		wake := make(chan struct{}, 1)
		q.waiters = append(q.waiters, wake)
		q.mu.Unlock()

		select {
		case <-wake:
			// Another Pop may have taken the element first; look again.
		case <-q.done:
		case <-ctx.Done():
			q.mu.Lock()
			if !q.removeWaiter(wake) {
				// Push already handed us a wake-up we will not use.
				q.wakeOne()
			}
			q.mu.Unlock()
			return zero, ctx.Err()
		}
		q.mu.Lock()
	}
}

// IsEmpty reports whether the queue was empty at the time of the call.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close wakes all waiters. Queued elements remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.waiters = nil
	close(q.done)
}

// wakeOne must be called with mu held.
func (q *Queue[T]) wakeOne() {
	if len(q.items) == q.head || len(q.waiters) == 0 {
		return
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	w <- struct{}{}
}

// removeWaiter must be called with mu held. It reports whether w was still parked.
func (q *Queue[T]) removeWaiter(w chan struct{}) bool {
	for i, cur := range q.waiters {
		if cur == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}
