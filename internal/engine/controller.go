// Package engine hosts a blocking, line-oriented engine loop on a
// dedicated worker thread and exposes it as an asynchronous component
// with idempotent lifecycle control.
package engine

import (
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Trickfest/StockfishEmbedded/internal/cmdqueue"
	"github.com/Trickfest/StockfishEmbedded/internal/streambridge"
)

// Loop is the opaque blocking engine procedure. It reads newline-framed
// commands from in until EOF and writes newline-framed responses to out.
// It must return after consuming a "quit" command or reaching EOF.
type Loop func(in io.Reader, out io.Writer)

// State is the adapter lifecycle state.
type State int32

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateRunning means the worker thread is live.
	StateRunning
	// StateStopping means Stop has begun and the worker is winding down.
	StateStopping
	// StateStopped is the terminal state.
	StateStopped
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// stopWait bounds how long Stop blocks on the worker before
	// detaching. Matches the original 2-second join bound.
	stopWait = 2 * time.Second

	cancelDirective = "stop"
	quitDirective   = "quit"
)

// Controller owns one worker thread running one engine loop. Start and
// Stop are idempotent; SendCommand is safe from any goroutine at any
// lifecycle point. One start/stop cycle per instance.
type Controller struct {
	loop  Loop
	sink  streambridge.LineSink
	queue *cmdqueue.Queue

	state    atomic.Int32
	done     chan struct{}
	stopWait time.Duration

	// sendMu serializes SendCommand against the Stop sequence so a
	// command can never be enqueued between the termination pair and
	// the queue close.
	sendMu sync.Mutex
}

// New constructs a controller for one engine loop. Output lines are
// forwarded to sink from the worker thread; dispatch elsewhere if the
// consumer is not thread-safe.
func New(loop Loop, sink streambridge.LineSink) *Controller {
	return &Controller{
		loop:     loop,
		sink:     sink,
		queue:    cmdqueue.New(),
		done:     make(chan struct{}),
		stopWait: stopWait,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	if c == nil {
		return StateStopped
	}
	return State(c.state.Load())
}

// Start spawns the worker thread. No-op if already started.
func (c *Controller) Start() {
	if c == nil || c.loop == nil {
		return
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return
	}

	go c.worker()
}

func (c *Controller) worker() {
	// The original dedicates a native thread to the engine; pinning
	// keeps loops that rely on thread-local state working.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	in := streambridge.NewCommandReader(c.queue)
	out := streambridge.NewLineWriter(c.sink)

	c.loop(in, out)

	out.Flush()
	// The caller may never call Stop; closing here guarantees the
	// reader cannot block forever on a dead loop's behalf.
	c.queue.Close()
	c.state.Store(int32(StateStopped))
	close(c.done)
}

// SendCommand enqueues one command line for the engine. Blank commands,
// and commands sent while the controller is not running, are silently
// dropped; callers race lifecycle transitions by design.
func (c *Controller) SendCommand(text string) {
	if c == nil || strings.TrimSpace(text) == "" {
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.State() != StateRunning {
		return
	}
	c.queue.Push(text)
}

// Stop requests graceful termination and waits up to the shutdown bound
// for the worker to exit. If the worker misses the bound it is detached:
// the goroutine is abandoned to finish on its own and Stop returns. The
// Go runtime will exit the process regardless of a detached worker, so
// this trades a bounded leak for caller responsiveness.
func (c *Controller) Stop() {
	if c == nil {
		return
	}
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}

	c.sendMu.Lock()
	c.queue.Push(cancelDirective)
	c.queue.Push(quitDirective)
	c.queue.Close()
	c.sendMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(c.stopWait):
		// Detach: the worker keeps the Stopping state until its loop
		// eventually returns and it marks itself Stopped.
	}
}

// Done is closed when the worker thread has fully exited. Stop may
// return before Done if the worker was detached.
func (c *Controller) Done() <-chan struct{} {
	if c == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}
