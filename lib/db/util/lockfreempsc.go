package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is an unbounded lock-free multi-producer single-consumer queue.
// Producers append to a linked list with CAS operations and never block.
// A single consumer goroutine moves the items in order to the channel returned by Recv.
//
// Items pushed by one producer are received in push order. Items of concurrent
// producers are ordered by whichever Push completes its CAS first.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan T
	done   chan struct{}
	closed atomic.Bool
	length atomic.Int64

	// wakes the consumer when it is idle
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new queue and starts its consumer goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:  make(chan T),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()

	return q
}

// Push appends an item to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and never blocks on the consumer.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// a failed CAS means another producer already advanced the tail for us
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin briefly under low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer. The mutex must be held while signalling, otherwise
// the signal can fall between the consumer's emptiness check and its Wait.
func (q *LockFreeMPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume moves items from the linked list to the output channel
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.done)
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.length.Add(-1)
			q.out <- value
			next.value = zero
			continue
		}

		if q.closed.Load() {
			// a Push racing with Close may still land after this check and is dropped
			if head.next.Load() == nil {
				return
			}
			continue
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel the queued items are delivered on.
// The channel is closed once the queue is closed and drained.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Done is closed after the consumer has delivered the last item
func (q *LockFreeMPSC[T]) Done() <-chan struct{} {
	return q.done
}

// Close prevents further pushes.
// Items already in the queue are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed returns true if the queue is closed
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items waiting in the queue
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.length.Load())
}
