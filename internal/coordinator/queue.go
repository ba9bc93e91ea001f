package coordinator

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by queue operations after Close.
var ErrClosed = errors.New("coordinator: queue closed")

// Priority selects the lane an item is pushed to.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Queue is a bounded two-lane FIFO. Pop prefers the high lane but takes a
// normal item after fairness consecutive high pops while normal work waits.
type Queue[T any] struct {
	high     chan T
	normal   chan T
	fairness int

	// mu is held shared by pushers so Drain observes every completed push.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once

	popMu  sync.Mutex
	streak int
}

// NewQueue returns a queue holding up to capacity items per lane.
func NewQueue[T any](capacity, fairness int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		high:     make(chan T, capacity),
		normal:   make(chan T, capacity),
		fairness: fairness,
		done:     make(chan struct{}),
	}
}

func (q *Queue[T]) lane(priority Priority) chan T {
	if priority == PriorityHigh {
		return q.high
	}
	return q.normal
}

// Push blocks until the item is enqueued, the context ends or the queue
// closes.
func (q *Queue[T]) Push(ctx context.Context, item T, priority Priority) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.lane(priority) <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// TryPush enqueues without blocking and reports whether the item was
// accepted.
func (q *Queue[T]) TryPush(item T, priority Priority) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.lane(priority) <- item:
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available. It returns ErrClosed once the queue
// is closed, leaving queued items for Drain.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-q.done:
			return zero, ErrClosed
		default:
		}
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-q.done:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		case item := <-q.high:
			q.account(PriorityHigh)
			return item, nil
		case item := <-q.normal:
			q.account(PriorityNormal)
			return item, nil
		}
	}
}

// TryPop returns the next item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	select {
	case <-q.done:
		return zero, false
	default:
	}
	q.popMu.Lock()
	defer q.popMu.Unlock()
	if q.fairness > 0 && q.streak >= q.fairness {
		select {
		case item := <-q.normal:
			q.streak = 0
			return item, true
		default:
		}
	}
	select {
	case item := <-q.high:
		q.streak++
		return item, true
	default:
	}
	select {
	case item := <-q.normal:
		q.streak = 0
		return item, true
	default:
	}
	return zero, false
}

func (q *Queue[T]) account(priority Priority) {
	q.popMu.Lock()
	if priority == PriorityHigh {
		q.streak++
	} else {
		q.streak = 0
	}
	q.popMu.Unlock()
}

// Len returns the number of queued items across both lanes.
func (q *Queue[T]) Len() int {
	return len(q.high) + len(q.normal)
}

// Cap returns the combined capacity of both lanes.
func (q *Queue[T]) Cap() int {
	return cap(q.high) + cap(q.normal)
}

// Close stops accepting pushes and wakes blocked callers. It is idempotent.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Drain removes and returns every queued item, high lane first. Call it
// after Close; it waits for in-flight pushes to settle.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var items []T
	for _, ch := range []chan T{q.high, q.normal} {
		for {
			select {
			case item := <-ch:
				items = append(items, item)
				continue
			default:
			}
			break
		}
	}
	return items
}
