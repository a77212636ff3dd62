package panel

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is an unbounded FIFO of events with any number of producers and a
// single blocking consumer.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events deque.Deque[Event]
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends events in order. A batch is never interleaved with another
// producer's batch.
func (q *Queue) Push(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	for _, ev := range events {
		q.events.PushBack(ev)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop removes and returns the oldest event, blocking until one is available.
func (q *Queue) Pop() Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.events.Len() == 0 {
		q.cond.Wait()
	}
	return q.events.PopFront()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.Len()
}
