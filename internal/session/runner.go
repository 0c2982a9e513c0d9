// Package session drives one embedded engine through a scripted
// multi-step exchange: handshake, configuration, readiness, then a
// bounded iteration loop of request/response rounds with per-step
// timeouts and a cooperative stop signal.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Trickfest/StockfishEmbedded/internal/engine"
	"github.com/Trickfest/StockfishEmbedded/internal/linechan"
	"github.com/Trickfest/StockfishEmbedded/internal/streambridge"
	"github.com/Trickfest/StockfishEmbedded/internal/uci"
)

// Option configures Runner construction.
type Option func(*Runner)

// WithLogger configures the structured logger used for run progress.
func WithLogger(logger *log.Logger) Option {
	return func(runner *Runner) {
		if logger != nil {
			runner.logger = logger
		}
	}
}

// WithTracer configures the tracer used for per-iteration spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(runner *Runner) {
		if tracer != nil {
			runner.tracer = tracer
		}
	}
}

// WithLineObserver registers an extra sink that sees every raw engine
// output line, alongside the session's own consumer.
func WithLineObserver(observer streambridge.LineSink) Option {
	return func(runner *Runner) {
		if observer != nil {
			runner.observers = append(runner.observers, observer)
		}
	}
}

// Runner owns one engine controller for the duration of one run. A
// Runner is single-use: construct, Run once, discard.
type Runner struct {
	cfg        Config
	controller *engine.Controller
	lines      *linechan.Channel
	observers  []streambridge.LineSink
	logger     *log.Logger
	tracer     trace.Tracer
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a runner hosting the given engine loop.
func New(cfg Config, loop engine.Loop, options ...Option) (*Runner, error) {
	if loop == nil {
		return nil, errors.New("engine loop is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runner := &Runner{
		cfg:    cfg.normalized(),
		lines:  linechan.New(),
		logger: log.New(io.Discard),
		tracer: otel.Tracer("sfembed/session"),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}

	sink := streambridge.LineSink(runner.lines)
	if len(runner.observers) > 0 {
		sink = append(streambridge.MultiSink{runner.lines}, runner.observers...)
	}
	runner.controller = engine.New(loop, sink)
	return runner, nil
}

// Stop requests cooperative termination. The flag is checked before
// every blocking wait and every delay; the in-flight wait is cancelled
// directly, and a cancellation directive is sent so a pending search
// resolves promptly. Safe to call from any goroutine, any number of
// times, including before Run.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stop)
		r.controller.SendCommand(uci.CmdStop)
	})
}

func (r *Runner) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Run drives the full session and blocks until it finishes. The sink
// receives every event in chronological order, ending with Finished;
// the returned summary matches the Finished payload. Run always shuts
// the engine down before returning, on success, fatal error, external
// stop, or ctx cancellation alike.
func (r *Runner) Run(ctx context.Context, sink Sink) Summary {
	if r == nil {
		return Summary{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}

	started := r.now()
	summary := Summary{}
	cfg := r.cfg

	sink.Handle(Event{Kind: KindStarted, Config: &cfg})
	r.controller.Start()
	r.logger.Info("session started", "positions", len(cfg.Positions), "limit", cfg.Limit)

	if r.prepare(ctx, sink, &summary) {
		r.iterate(ctx, sink, &summary)
	}

	// Shutdown runs unconditionally.
	r.controller.Stop()
	r.lines.Finish()
	if r.stopped() {
		sink.Handle(Event{Kind: KindStopped})
	}

	summary.Elapsed = r.now().Sub(started)
	sink.Handle(Event{Kind: KindFinished, Summary: &summary})
	r.logger.Info("session finished",
		"attempted", summary.Attempted,
		"completed", summary.Completed,
		"timeouts", summary.Timeouts,
		"errors", summary.Errors,
		"elapsed", summary.Elapsed,
	)
	return summary
}

// prepare performs handshake, configuration, and the initial readiness
// probe. Returns false if the run must proceed straight to shutdown.
func (r *Runner) prepare(ctx context.Context, sink Sink, summary *Summary) bool {
	r.controller.SendCommand(uci.CmdInit)
	if _, ok := r.awaitPrefix(ctx, sink, uci.AckInit, r.cfg.HandshakeTimeout, nil); !ok {
		return r.fatal(sink, summary, "handshake timed out awaiting "+uci.AckInit)
	}

	for _, directive := range r.cfg.Setup {
		r.controller.SendCommand(directive)
	}

	if !r.synchronize(ctx, sink) {
		return r.fatal(sink, summary, "readiness probe timed out awaiting "+uci.AckReady)
	}
	return true
}

// fatal records a protocol desynchronization unless it was caused by an
// external stop or context cancellation, which end the run silently.
func (r *Runner) fatal(sink Sink, summary *Summary, message string) bool {
	if r.stopped() {
		return false
	}
	summary.Errors++
	sink.Handle(Event{Kind: KindError, Message: message})
	r.logger.Error("session aborted", "reason", message)
	return false
}

func (r *Runner) synchronize(ctx context.Context, sink Sink) bool {
	r.controller.SendCommand(uci.CmdIsReady)
	_, ok := r.awaitPrefix(ctx, sink, uci.AckReady, r.cfg.HandshakeTimeout, nil)
	return ok
}

func (r *Runner) iterate(ctx context.Context, sink Sink, summary *Summary) {
	for !r.stopped() && ctx.Err() == nil {
		if r.cfg.MaxIterations > 0 && summary.Attempted >= r.cfg.MaxIterations {
			return
		}
		index := summary.Attempted
		request := r.cfg.Positions[index%len(r.cfg.Positions)]
		summary.Attempted++

		sink.Handle(Event{Kind: KindIterationStarted, Iteration: index, Request: request})

		if r.cfg.ResyncEachIteration && !r.synchronize(ctx, sink) {
			r.fatal(sink, summary, "readiness probe timed out awaiting "+uci.AckReady)
			return
		}

		if !r.runIteration(ctx, sink, summary, index, request) {
			return
		}

		if r.cfg.Delay > 0 && !r.pause(ctx) {
			return
		}
	}
}

// runIteration sends one request and awaits its completion. Returns
// false when the loop must stop.
func (r *Runner) runIteration(ctx context.Context, sink Sink, summary *Summary, index int, request string) bool {
	iterCtx, span := r.tracer.Start(ctx, "session.iteration")
	span.SetAttributes(
		attribute.Int("iteration", index),
		attribute.String("request", request),
	)
	defer span.End()

	started := r.now()
	result := &Result{}

	r.controller.SendCommand(request)
	r.controller.SendCommand(r.cfg.Limit)

	line, ok := r.awaitPrefix(iterCtx, sink, uci.PrefixBestMove, r.cfg.MoveTimeout, result)
	elapsed := r.now().Sub(started)

	if ok {
		result.Move, _ = uci.ParseBestMove(line)
		summary.Completed++
		sink.Handle(Event{Kind: KindIterationCompleted, Iteration: index, Result: result, Elapsed: elapsed})
		span.SetAttributes(
			attribute.String("move", result.Move),
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
		)
		span.SetStatus(codes.Ok, "iteration completed")
		r.logger.Debug("iteration completed", "iteration", index, "move", result.Move, "elapsed", elapsed)
		return true
	}
	if r.stopped() || ctx.Err() != nil {
		span.SetStatus(codes.Error, "iteration interrupted")
		return false
	}

	// Timed out: cancel the search and give the engine a grace period
	// to settle before deciding whether the run survives.
	summary.Timeouts++
	sink.Handle(Event{Kind: KindTimeout, Iteration: index, Request: request, Elapsed: elapsed})
	span.SetStatus(codes.Error, "search timed out")
	r.logger.Warn("search timed out", "iteration", index, "elapsed", elapsed)

	r.controller.SendCommand(uci.CmdStop)
	if _, ok := r.awaitPrefix(iterCtx, sink, uci.PrefixBestMove, r.cfg.GraceTimeout, nil); ok {
		return true
	}
	if r.stopped() || ctx.Err() != nil {
		return false
	}
	if r.cfg.TimeoutIsFatal {
		r.fatal(sink, summary, "engine unresponsive after cancellation directive")
		return false
	}
	return true
}

// awaitPrefix consumes output lines until one matches the prefix, the
// bound expires, the runner is stopped, or ctx is cancelled. Lines that
// do not match are forwarded as OutputLine events and, when collecting,
// appended to the iteration transcript with the latest score retained.
func (r *Runner) awaitPrefix(
	ctx context.Context,
	sink Sink,
	prefix string,
	timeout time.Duration,
	collecting *Result,
) (string, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Race the wait against the stop signal so the loop can exit
	// before its next natural check point.
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for {
		line, ok := r.lines.Next(waitCtx)
		if !ok {
			return "", false
		}
		if uci.HasPrefix(line, prefix) {
			return line, true
		}
		sink.Handle(Event{Kind: KindOutputLine, Line: line})
		if collecting != nil {
			collecting.Transcript = append(collecting.Transcript, line)
			if score, found := uci.ParseScore(line); found {
				collecting.Score = score
				collecting.HasScore = true
			}
		}
	}
}

// pause waits out the inter-iteration delay, returning early (false)
// on stop or cancellation.
func (r *Runner) pause(ctx context.Context) bool {
	timer := time.NewTimer(r.cfg.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
