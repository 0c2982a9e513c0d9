// Package uci holds the line-level UCI vocabulary the adapter needs:
// the directives it sends, the response prefixes it matches, and
// parsers for the handful of structured fields it extracts. Everything
// else on the wire is opaque text.
package uci

import (
	"strconv"
	"strings"
)

const (
	// CmdInit begins the protocol handshake.
	CmdInit = "uci"
	// CmdIsReady probes engine readiness.
	CmdIsReady = "isready"
	// CmdStop cancels the current search.
	CmdStop = "stop"
	// CmdQuit terminates the engine loop.
	CmdQuit = "quit"
	// CmdUCINewGame resets engine search state between games.
	CmdUCINewGame = "ucinewgame"

	// AckInit acknowledges CmdInit.
	AckInit = "uciok"
	// AckReady acknowledges CmdIsReady.
	AckReady = "readyok"

	// PrefixBestMove starts a search-completion line; the move is the
	// second whitespace-delimited field.
	PrefixBestMove = "bestmove"
	// PrefixInfo starts a search progress line.
	PrefixInfo = "info"
	// PrefixNodesSearched starts the perft summary line; the node
	// count is the trailing integer field.
	PrefixNodesSearched = "Nodes searched:"
)

// ScoreType distinguishes the two score shapes an info line can carry.
type ScoreType int

const (
	// ScoreCentipawns is an evaluation in hundredths of a pawn.
	ScoreCentipawns ScoreType = iota
	// ScoreMateIn is a forced mate distance in moves.
	ScoreMateIn
)

// String renders the score keyword as it appears on the wire.
func (t ScoreType) String() string {
	if t == ScoreMateIn {
		return "mate"
	}
	return "cp"
}

// Score is a typed evaluation extracted from an info line.
type Score struct {
	Type  ScoreType
	Value int
}

// HasPrefix reports whether line starts with the given token followed
// by a field boundary (end of line or whitespace).
func HasPrefix(line, prefix string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return false
	}
	rest := line[len(prefix):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// ParseBestMove extracts the move token from a bestmove line.
func ParseBestMove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != PrefixBestMove {
		return "", false
	}
	return fields[1], true
}

// ParseScore extracts the score from an info line, e.g.
// "info depth 12 score cp 34 nodes ..." or "... score mate -3 ...".
func ParseScore(line string) (Score, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != PrefixInfo {
		return Score{}, false
	}
	for i := 0; i+2 < len(fields); i++ {
		if fields[i] != "score" {
			continue
		}
		value, err := strconv.Atoi(fields[i+2])
		if err != nil {
			return Score{}, false
		}
		switch fields[i+1] {
		case "cp":
			return Score{Type: ScoreCentipawns, Value: value}, true
		case "mate":
			return Score{Type: ScoreMateIn, Value: value}, true
		default:
			return Score{}, false
		}
	}
	return Score{}, false
}

// ParseNodesSearched extracts the node count from a perft summary line.
func ParseNodesSearched(line string) (int64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, PrefixNodesSearched) {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	value, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
