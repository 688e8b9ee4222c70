package watcher

import (
	"sync"

	"github.com/gammazero/deque"
)

// eventQueue is an unbounded single-producer/single-consumer hand-off. push
// never blocks; a pump goroutine moves queued events onto the out channel
// and closes it once the queue is closed and drained.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *deque.Deque[WatchEvent]
	closed bool
	out    chan WatchEvent
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		items: deque.New[WatchEvent](),
		out:   make(chan WatchEvent),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// push appends ev. Dropped after close.
func (q *eventQueue) push(ev WatchEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items.PushBack(ev)
	q.cond.Signal()
}

// close stops accepting events. Already queued events are still delivered.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Signal()
}

func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		for q.items.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.items.Len() == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		ev := q.items.PopFront()
		q.mu.Unlock()

		q.out <- ev
	}
}
