package workers

import (
	"sync"
)

// job is one scheduled upload. The token ties it to the status map entry
// created by the same Schedule call.
type job struct {
	id    string
	token uint64
}

// Queue is an unbounded FIFO of upload jobs. Push never blocks; Pop blocks
// until a job is available or the queue is closed.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []job
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a job. It reports false once the queue is closed.
func (q *Queue) Push(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, j)
	q.cond.Signal()
	return true
}

// Pop removes the oldest job, waiting for one if the queue is empty. It
// returns false when the queue has been closed.
func (q *Queue) Pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return job{}, false
	}
	j := q.items[0]
	q.items[0] = job{}
	q.items = q.items[1:]
	return j, true
}

// Clear drops every pending job and returns how many were dropped
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every waiting Pop. Jobs still queued are discarded and their
// count returned.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	n := len(q.items)
	q.items = nil
	q.cond.Broadcast()
	return n
}
