// Package cmdqueue provides the blocking hand-off queue between callers
// and the engine worker thread.
package cmdqueue

import "sync"

// Queue is an unbounded, closable FIFO of command lines.
//
// Push after Close is a silent no-op: late sends during shutdown are
// expected and must not fail. Pop blocks until an item arrives or the
// queue is closed and drained, which is the end-of-input signal for the
// engine's input stream.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

// New constructs an open, empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a command line. No-op once the queue is closed.
func (q *Queue) Push(line string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, line)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until a line is available or the queue is closed and empty.
// The second return value is false only in the closed-and-empty case.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && len(q.items) == 0 {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}

	line := q.items[0]
	q.items = q.items[1:]
	return line, true
}

// Close marks the queue closed and wakes every blocked Pop. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len reports the number of queued lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
