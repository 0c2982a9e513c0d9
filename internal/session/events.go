package session

import (
	"time"

	"github.com/Trickfest/StockfishEmbedded/internal/uci"
)

// Kind tags a session event variant.
type Kind string

const (
	// KindStarted fires once, first, with the resolved configuration.
	KindStarted Kind = "Started"
	// KindOutputLine forwards one engine output line observed while
	// awaiting a completion response.
	KindOutputLine Kind = "OutputLine"
	// KindIterationStarted precedes each request.
	KindIterationStarted Kind = "IterationStarted"
	// KindIterationCompleted reports a successful iteration.
	KindIterationCompleted Kind = "IterationCompleted"
	// KindTimeout reports a search that missed its bound.
	KindTimeout Kind = "Timeout"
	// KindStopped reports that an external stop request took effect.
	KindStopped Kind = "Stopped"
	// KindError reports a fatal protocol failure.
	KindError Kind = "Error"
	// KindFinished fires once, last, with the run summary.
	KindFinished Kind = "Finished"
)

// Result is the outcome of one completed iteration.
type Result struct {
	// Move is the token from the completion line's second field.
	Move string
	// Score is the most recent typed evaluation observed in this
	// iteration's transcript; HasScore is false if none appeared.
	Score    uci.Score
	HasScore bool
	// Transcript holds every line observed between request and
	// completion, in production order.
	Transcript []string
}

// Summary aggregates one run's outcome. It is computed once, at run
// completion, and matches the Finished event payload.
type Summary struct {
	Attempted int
	Completed int
	Timeouts  int
	Errors    int
	Elapsed   time.Duration
}

// Event is one tagged session occurrence. Only the fields relevant to
// the Kind are populated.
type Event struct {
	Kind      Kind
	Config    *Config       // Started
	Line      string        // OutputLine
	Iteration int           // IterationStarted, IterationCompleted, Timeout
	Request   string        // IterationStarted, Timeout
	Result    *Result       // IterationCompleted
	Elapsed   time.Duration // IterationCompleted, Timeout
	Message   string        // Error
	Summary   *Summary      // Finished
}

// Sink consumes session events. Events arrive in strict chronological
// order; handlers run on the session goroutine, so a slow sink slows
// the run.
type Sink interface {
	Handle(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

// Handle calls f(event).
func (f SinkFunc) Handle(event Event) { f(event) }

// MultiSink forwards each event to several sinks, in order. Fan-out to
// independent consumers is composition, not a channel feature.
type MultiSink []Sink

// Handle forwards the event to every sink.
func (m MultiSink) Handle(event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Handle(event)
		}
	}
}
