package broadcast

import (
	"sync"

	"github.com/m1kah/livegrid/internal/store"
)

// task is one notification for one subscriber.
type task struct {
	entry *entry
	sub   Subscriber
	batch store.ChangeBatch
}

// dispatchQueue is an unbounded FIFO drained by a single goroutine.
//
// enqueue never blocks, so a publisher is never held up by a slow consumer.
// close stops accepting work, lets the goroutine run what is already queued
// and waits for it to exit.
type dispatchQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool

	wake chan struct{}
	done chan struct{}
	run  func(task)
}

func newDispatchQueue(run func(task)) *dispatchQueue {
	q := &dispatchQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		run:  run,
	}
	go q.loop()
	return q
}

func (q *dispatchQueue) enqueue(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *dispatchQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *dispatchQueue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		t := q.tasks[0]
		q.tasks[0] = task{} // release the subscriber reference
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(t)
	}
}

// pending returns the number of queued tasks not yet started.
func (q *dispatchQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *dispatchQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
	<-q.done
}
