package session

import (
	"errors"
	"strings"
	"time"
)

const (
	defaultMoveTimeout      = 10 * time.Second
	defaultGraceTimeout     = 2 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
)

// Config describes one scripted session: the positions to iterate over,
// the search limit applied to each, and the timing bounds. Values are
// copied at construction; a running session never observes later edits.
type Config struct {
	// Positions are the request directives cycled across iterations,
	// e.g. "position startpos" or "position fen ...".
	Positions []string

	// Limit is the search-limit directive sent after each position,
	// e.g. "go movetime 100" or "go depth 12".
	Limit string

	// Setup directives are sent once after the handshake, in order,
	// with no acknowledgment expected (typically "setoption ..." lines).
	Setup []string

	// MaxIterations caps the run; zero or negative means unbounded.
	MaxIterations int

	// MoveTimeout bounds each wait for the search-completion line.
	MoveTimeout time.Duration

	// GraceTimeout bounds the wait for completion after a cancellation
	// directive has been sent following a timeout.
	GraceTimeout time.Duration

	// HandshakeTimeout bounds the initiation and readiness waits.
	HandshakeTimeout time.Duration

	// Delay, when positive, suspends between iterations. The suspension
	// is cancelled early by Stop.
	Delay time.Duration

	// ResyncEachIteration sends a readiness probe before every
	// iteration instead of only once after setup.
	ResyncEachIteration bool

	// TimeoutIsFatal aborts the run when a search timeout is followed
	// by a grace-period timeout.
	TimeoutIsFatal bool
}

// normalized returns a copy with defaults applied and slices detached
// from the caller.
func (c Config) normalized() Config {
	out := c
	out.Positions = append([]string(nil), c.Positions...)
	out.Setup = append([]string(nil), c.Setup...)
	if out.MoveTimeout <= 0 {
		out.MoveTimeout = defaultMoveTimeout
	}
	if out.GraceTimeout <= 0 {
		out.GraceTimeout = defaultGraceTimeout
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = defaultHandshakeTimeout
	}
	return out
}

func (c Config) validate() error {
	if len(c.Positions) == 0 {
		return errors.New("at least one position is required")
	}
	for _, position := range c.Positions {
		if strings.TrimSpace(position) == "" {
			return errors.New("positions must not be blank")
		}
	}
	if strings.TrimSpace(c.Limit) == "" {
		return errors.New("search limit directive is required")
	}
	return nil
}
