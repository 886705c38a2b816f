package blockingqueue

import (
	"context"
	"sync"

	"github.com/i5heu/GoProducerConsumer/internal/queue"
)

// compactThreshold is the number of consumed head slots after which the
// backing slice is shifted down instead of growing forever.
const compactThreshold = 1024

// Queue is an unbounded, mutex-guarded FIFO whose Pop parks on a sync.Cond
// until an element is pushed, the context is done or the queue is closed.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

var _ queue.Queue[int] = (*Queue[int])(nil)

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends val and signals one waiter.
func (q *Queue[T]) Push(val T) {
	q.mu.Lock()
	q.items = append(q.items, val)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop removes and returns the head of the queue, waiting while it is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size() == 0 && !q.closed {
		// Wake every waiter under the lock when ctx ends, so a waiter that
		// checked ctx.Err() but has not parked yet cannot miss the broadcast.
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
	}

	for q.size() == 0 {
		if q.closed {
			return zero, queue.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}

	val := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compact()
	return val, nil
}

// IsEmpty reports whether the queue was empty at the time of the call.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

// Close wakes all waiters. Queued elements remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// size must be called with mu held.
func (q *Queue[T]) size() int {
	return len(q.items) - q.head
}

// compact must be called with mu held.
func (q *Queue[T]) compact() {
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
