package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Pop once the queue has been closed and drained.
var ErrClosed = errors.New("queue: closed")

// Queue is the contract every blocking FIFO in this module satisfies.
// Implementations are unbounded, so Push never blocks; only Pop waits.
type Queue[T any] interface {
	// Push appends an element to the tail and wakes at most one waiting Pop.
	Push(T)

	// Pop removes and returns the oldest element. If the queue is empty the
	// caller parks until an element arrives, ctx is done (ctx.Err() is
	// returned) or the queue is closed and empty (ErrClosed is returned).
	// A nil error always comes with a real element.
	Pop(ctx context.Context) (T, error)

	// IsEmpty reports whether the queue held no elements at the time of the call.
	// The answer may be stale by the time the caller looks at it.
	IsEmpty() bool

	// Len returns how many elements are currently queued. Advisory, like IsEmpty.
	Len() int

	// Close wakes every waiter. Elements still queued can be drained by Pop;
	// afterwards Pop returns ErrClosed instead of blocking.
	Close()
}
