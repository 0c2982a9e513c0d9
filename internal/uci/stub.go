package uci

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStubName  = "sfembed-stub 1.0"
	defaultStubMove  = "e2e4"
	defaultStubDelay = 10 * time.Millisecond
)

// Perft node counts from the standard starting position, depths 1-6.
var startposPerft = []int64{20, 400, 8902, 197281, 4865609, 119060324}

// StubOption configures the stub engine.
type StubOption func(*Stub)

// WithName overrides the identity banner name.
func WithName(name string) StubOption {
	return func(s *Stub) {
		if strings.TrimSpace(name) != "" {
			s.name = name
		}
	}
}

// WithSearchDelay sets how long a search runs before bestmove is
// emitted (unless stopped earlier).
func WithSearchDelay(delay time.Duration) StubOption {
	return func(s *Stub) {
		if delay >= 0 {
			s.searchDelay = delay
		}
	}
}

// WithBestMove fixes the move the stub reports.
func WithBestMove(move string) StubOption {
	return func(s *Stub) {
		if strings.TrimSpace(move) != "" {
			s.bestMove = move
		}
	}
}

// WithScore fixes the score reported on info lines.
func WithScore(score Score) StubOption {
	return func(s *Stub) {
		s.score = score
	}
}

// Stub is a protocol-faithful miniature UCI responder. It speaks the
// handshake, readiness, search, perft, stop and quit flows with
// deterministic canned answers; it performs no real search. It stands
// in for a vendored engine in tests, diagnostics, and the bundled CLI.
type Stub struct {
	name        string
	bestMove    string
	score       Score
	searchDelay time.Duration
}

// NewStub constructs a stub engine.
func NewStub(options ...StubOption) *Stub {
	s := &Stub{
		name:        defaultStubName,
		bestMove:    defaultStubMove,
		score:       Score{Type: ScoreCentipawns, Value: 21},
		searchDelay: defaultStubDelay,
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	return s
}

// Run is the blocking engine loop. It reads newline-framed commands
// from in until EOF or quit, writing responses to out. Satisfies the
// controller's Loop signature.
func (s *Stub) Run(in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "%s by Trickfest\n", s.name)

	commands := make(chan string)
	go func() {
		defer close(commands)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			commands <- scanner.Text()
		}
	}()

	for {
		command, open := <-commands
		if !open {
			return
		}
		switch fields := strings.Fields(command); {
		case len(fields) == 0:
		case fields[0] == CmdQuit:
			return
		case fields[0] == CmdInit:
			fmt.Fprintf(out, "id name %s\n", s.name)
			fmt.Fprintln(out, "id author Trickfest")
			fmt.Fprintln(out, "option name Threads type spin default 1 min 1 max 512")
			fmt.Fprintln(out, AckInit)
		case fields[0] == CmdIsReady:
			fmt.Fprintln(out, AckReady)
		case fields[0] == CmdStop, fields[0] == CmdUCINewGame:
		case fields[0] == "setoption", fields[0] == "position":
			// Accepted silently, like the real engine.
		case fields[0] == "go" && len(fields) >= 3 && fields[1] == "perft":
			s.perft(out, fields[2])
		case fields[0] == "go":
			if quit := s.search(out, commands); quit {
				return
			}
		}
	}
}

// search emits progress then a bestmove after the configured delay,
// cutting the delay short if stop or quit arrives mid-search.
func (s *Stub) search(out io.Writer, commands <-chan string) (quit bool) {
	fmt.Fprintf(out, "info depth 1 score %s %d nodes 32 pv %s\n", s.score.Type, s.score.Value, s.bestMove)

	timer := time.NewTimer(s.searchDelay)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			fmt.Fprintf(out, "info depth 12 score %s %d nodes 240211 pv %s\n", s.score.Type, s.score.Value, s.bestMove)
			fmt.Fprintf(out, "%s %s\n", PrefixBestMove, s.bestMove)
			return false
		case command, open := <-commands:
			if !open {
				return true
			}
			switch strings.TrimSpace(command) {
			case CmdStop:
				fmt.Fprintf(out, "%s %s\n", PrefixBestMove, s.bestMove)
				return false
			case CmdQuit:
				return true
			}
			// Other commands during a search are ignored, matching
			// the real engine's busy behavior.
		}
	}
}

func (s *Stub) perft(out io.Writer, depthField string) {
	depth, err := strconv.Atoi(depthField)
	if err != nil || depth < 1 {
		depth = 1
	}
	nodes := startposPerft[len(startposPerft)-1]
	if depth <= len(startposPerft) {
		nodes = startposPerft[depth-1]
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %d\n", PrefixNodesSearched, nodes)
}
