package linechan

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBufferedLinesDeliverInPushOrder(t *testing.T) {
	t.Parallel()

	c := New()
	c.Push("info depth 1")
	c.Push("info depth 2")
	c.Push("bestmove e2e4")

	ctx := context.Background()
	want := []string{"info depth 1", "info depth 2", "bestmove e2e4"}
	for _, expected := range want {
		got, ok := c.Next(ctx)
		if !ok {
			t.Fatalf("Next() closed early, want %q", expected)
		}
		if got != expected {
			t.Fatalf("Next() = %q, want %q", got, expected)
		}
	}
}

func TestNextSuspendsUntilPush(t *testing.T) {
	t.Parallel()

	c := New()
	got := make(chan string, 1)
	go func() {
		line, _ := c.Next(context.Background())
		got <- line
	}()

	select {
	case line := <-got:
		t.Fatalf("Next() returned %q before push", line)
	case <-time.After(50 * time.Millisecond):
	}

	c.Push("readyok")
	select {
	case line := <-got:
		if line != "readyok" {
			t.Fatalf("Next() = %q, want %q", line, "readyok")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("suspended Next never resumed after Push")
	}
}

func TestWaitersResumeInFIFOOrder(t *testing.T) {
	t.Parallel()

	c := New()
	first := make(chan string, 1)
	second := make(chan string, 1)

	go func() {
		line, _ := c.Next(context.Background())
		first <- line
	}()
	time.Sleep(30 * time.Millisecond) // ensure registration order
	go func() {
		line, _ := c.Next(context.Background())
		second <- line
	}()
	time.Sleep(30 * time.Millisecond)

	c.Push("one")
	c.Push("two")

	deadline := time.After(2 * time.Second)
	select {
	case got := <-first:
		if got != "one" {
			t.Fatalf("oldest waiter got %q, want %q", got, "one")
		}
	case <-deadline:
		t.Fatal("first waiter never resumed")
	}
	select {
	case got := <-second:
		if got != "two" {
			t.Fatalf("second waiter got %q, want %q", got, "two")
		}
	case <-deadline:
		t.Fatal("second waiter never resumed")
	}
}

func TestCancellationResumesOnlyThatWaiter(t *testing.T) {
	t.Parallel()

	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	cancelled := make(chan bool, 1)
	go func() {
		_, ok := c.Next(ctx)
		cancelled <- ok
	}()
	time.Sleep(30 * time.Millisecond)

	survivor := make(chan string, 1)
	go func() {
		line, _ := c.Next(context.Background())
		survivor <- line
	}()
	time.Sleep(30 * time.Millisecond)

	cancel()
	select {
	case ok := <-cancelled:
		if ok {
			t.Fatal("cancelled Next returned ok = true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter never resumed")
	}

	// The surviving waiter still gets the next line.
	c.Push("bestmove d2d4")
	select {
	case got := <-survivor:
		if got != "bestmove d2d4" {
			t.Fatalf("survivor got %q, want %q", got, "bestmove d2d4")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("surviving waiter never resumed after cancellation of another")
	}
}

func TestFinishResumesAllWaitersClosed(t *testing.T) {
	t.Parallel()

	c := New()
	const waiters = 4
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, ok := c.Next(context.Background())
			results <- ok
		}()
	}
	time.Sleep(50 * time.Millisecond)

	c.Finish()
	for i := 0; i < waiters; i++ {
		select {
		case ok := <-results:
			if ok {
				t.Fatal("waiter resumed with ok = true after Finish")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never resumed after Finish")
		}
	}

	if line, ok := c.Next(context.Background()); ok {
		t.Fatalf("Next() after Finish = %q, true; want closed", line)
	}
}

func TestFinishDropsBufferAndIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New()
	c.Push("stale")
	c.Finish()
	c.Finish()

	if !c.Finished() {
		t.Fatal("Finished() = false after Finish")
	}
	if line, ok := c.Next(context.Background()); ok {
		t.Fatalf("Next() after Finish delivered buffered %q", line)
	}
	c.Push("late") // dropped
	if _, ok := c.Next(context.Background()); ok {
		t.Fatal("Push after Finish was delivered")
	}
}

func TestEveryPushedLineDeliveredExactlyOnce(t *testing.T) {
	t.Parallel()

	c := New()
	const total = 100

	delivered := make(chan string, total)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for {
			line, ok := c.Next(ctx)
			if !ok {
				return
			}
			delivered <- line
		}
	}()

	for i := 0; i < total; i++ {
		c.Push(fmt.Sprintf("line-%d", i))
	}
	// Let the consumer drain before closing.
	deadline := time.Now().Add(2 * time.Second)
	for len(delivered) < total && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Finish()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never observed Finish")
	}

	if got := len(delivered); got != total {
		t.Fatalf("delivered %d lines, want %d", got, total)
	}
	for i := 0; i < total; i++ {
		want := fmt.Sprintf("line-%d", i)
		if got := <-delivered; got != want {
			t.Fatalf("delivery[%d] = %q, want %q (order violated)", i, got, want)
		}
	}
}
