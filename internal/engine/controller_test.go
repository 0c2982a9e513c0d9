package engine

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

// echoLoop responds to a minimal command set the way a line engine
// would: every recognized probe gets its acknowledgment, everything
// else is echoed back.
func echoLoop(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch line := scanner.Text(); line {
		case "quit":
			return
		case "isready":
			fmt.Fprintln(out, "readyok")
		case "stop":
		default:
			fmt.Fprintln(out, "echo "+line)
		}
	}
}

// hangLoop never reads input and never returns until released.
func hangLoop(release <-chan struct{}) Loop {
	return func(io.Reader, io.Writer) {
		<-release
	}
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
	seen  chan string
}

func newLineRecorder() *lineRecorder {
	return &lineRecorder{seen: make(chan string, 256)}
}

func (r *lineRecorder) WriteLine(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	r.seen <- line
}

func (r *lineRecorder) await(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line %q", want)
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()

	recorder := newLineRecorder()
	c := New(echoLoop, recorder)
	defer c.Stop()

	c.Start()
	c.Start()

	c.SendCommand("isready")
	recorder.await(t, "readyok")

	if got := c.State(); got != StateRunning {
		t.Fatalf("State() = %v after double Start, want %v", got, StateRunning)
	}
}

func TestSendBeforeStartAndAfterStopAreSafe(t *testing.T) {
	t.Parallel()

	recorder := newLineRecorder()
	c := New(echoLoop, recorder)

	c.SendCommand("isready") // not running yet; must not panic or block

	c.Start()
	c.Stop()
	c.SendCommand("isready") // stopped; must not panic or block

	select {
	case got := <-recorder.seen:
		t.Fatalf("unexpected engine output %q from ignored sends", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopIsIdempotentAndReachesStopped(t *testing.T) {
	t.Parallel()

	c := New(echoLoop, newLineRecorder())
	c.Start()

	c.Stop()
	c.Stop()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after Stop")
	}
	if got := c.State(); got != StateStopped {
		t.Fatalf("State() = %v, want %v", got, StateStopped)
	}
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	t.Parallel()

	c := New(echoLoop, newLineRecorder())
	c.Stop()

	if got := c.State(); got != StateIdle {
		t.Fatalf("State() = %v after Stop without Start, want %v", got, StateIdle)
	}
}

func TestStopDetachesHungWorkerWithinBound(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := New(hangLoop(release), newLineRecorder())
	c.stopWait = 100 * time.Millisecond
	c.Start()

	started := time.Now()
	c.Stop()
	elapsed := time.Since(started)

	if elapsed > c.stopWait+500*time.Millisecond {
		t.Fatalf("Stop blocked %v with a hung loop, want under %v", elapsed, c.stopWait+500*time.Millisecond)
	}
	if got := c.State(); got != StateStopping {
		t.Fatalf("State() = %v while worker is detached, want %v", got, StateStopping)
	}

	// Releasing the loop lets the detached worker finish unobserved.
	close(release)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("detached worker never exited after release")
	}
	if got := c.State(); got != StateStopped {
		t.Fatalf("State() = %v after detached worker exit, want %v", got, StateStopped)
	}
}

func TestLoopExitWithoutStopClosesQueueAndStops(t *testing.T) {
	t.Parallel()

	recorder := newLineRecorder()
	c := New(echoLoop, recorder)
	c.Start()

	c.SendCommand("quit")
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after engine consumed quit")
	}
	if got := c.State(); got != StateStopped {
		t.Fatalf("State() = %v, want %v", got, StateStopped)
	}

	// A later Stop is a no-op, and sends stay safe.
	c.Stop()
	c.SendCommand("isready")
}

func TestManyConcurrentSendsThenProbe(t *testing.T) {
	t.Parallel()

	recorder := newLineRecorder()
	c := New(echoLoop, recorder)
	c.Start()
	defer c.Stop()

	const senders = 200
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.SendCommand(fmt.Sprintf("cmd-%d", i))
		}(i)
	}
	wg.Wait()

	c.SendCommand("isready")
	recorder.await(t, "readyok")
}

func TestRepeatedReadinessProbe(t *testing.T) {
	t.Parallel()

	recorder := newLineRecorder()
	c := New(echoLoop, recorder)
	c.Start()
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.SendCommand("isready")
		recorder.await(t, "readyok")
	}
}

func TestPartialFinalLineIsFlushedOnLoopExit(t *testing.T) {
	t.Parallel()

	loop := func(in io.Reader, out io.Writer) {
		io.WriteString(out, "info string tearing down") // no terminator
	}
	recorder := newLineRecorder()
	c := New(loop, recorder)
	c.Start()

	select {
	case got := <-recorder.seen:
		if got != "info string tearing down" {
			t.Fatalf("flushed line = %q, want %q", got, "info string tearing down")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("partial final line was not flushed")
	}
}
