// Package linechan bridges the synchronous line callback invoked on the
// engine worker thread to cooperative consumers awaiting lines one at a
// time. One logical consumer per channel instance; fan-out is done with
// multiple sinks upstream, not by sharing a channel.
package linechan

import (
	"container/list"
	"context"
	"sync"
)

// Channel delivers engine output lines in production order. Push never
// blocks; Next suspends until a line, Finish, or cancellation.
type Channel struct {
	mu       sync.Mutex
	buffered []string
	waiters  *list.List // of chan string, oldest first
	finished bool
}

// New constructs an open channel.
func New() *Channel {
	return &Channel{waiters: list.New()}
}

// Push hands a line to the oldest waiter if one is suspended, otherwise
// buffers it. Lines pushed after Finish are dropped.
func (c *Channel) Push(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	if front := c.waiters.Front(); front != nil {
		c.waiters.Remove(front)
		// Buffered channel, so this never blocks even if the waiter
		// is concurrently giving up; the cancellation path drains it.
		front.Value.(chan string) <- line
		return
	}
	c.buffered = append(c.buffered, line)
}

// Next returns the oldest buffered line, or suspends until a line is
// pushed, Finish is called, or ctx is cancelled. ok is false when the
// channel is finished or the wait was cancelled.
func (c *Channel) Next(ctx context.Context) (string, bool) {
	c.mu.Lock()
	if len(c.buffered) > 0 {
		line := c.buffered[0]
		c.buffered = c.buffered[1:]
		c.mu.Unlock()
		return line, true
	}
	if c.finished {
		c.mu.Unlock()
		return "", false
	}

	// Capacity 1 so a racing Push or Finish never blocks on a waiter
	// that is about to give up.
	ch := make(chan string, 1)
	elem := c.waiters.PushBack(ch)
	c.mu.Unlock()

	select {
	case line, ok := <-ch:
		if !ok {
			return "", false
		}
		return line, true
	case <-ctx.Done():
		c.mu.Lock()
		c.waiters.Remove(elem)
		c.mu.Unlock()
		// A push may have landed between ctx firing and the lock;
		// deliver it rather than lose the line.
		select {
		case line, ok := <-ch:
			if ok {
				return line, true
			}
		default:
		}
		return "", false
	}
}

// Finish closes the channel: all suspended waiters resume with ok=false,
// buffered lines are dropped, and future Next calls resolve immediately.
// Idempotent.
func (c *Channel) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.finished = true
	c.buffered = nil
	for c.waiters.Len() > 0 {
		front := c.waiters.Front()
		c.waiters.Remove(front)
		close(front.Value.(chan string))
	}
}

// Finished reports whether Finish has been called.
func (c *Channel) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// WriteLine makes Channel usable directly as a streambridge.LineSink.
func (c *Channel) WriteLine(line string) { c.Push(line) }
