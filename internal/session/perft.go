package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Trickfest/StockfishEmbedded/internal/engine"
	"github.com/Trickfest/StockfishEmbedded/internal/linechan"
	"github.com/Trickfest/StockfishEmbedded/internal/uci"
)

// Perft runs one node-count diagnostic against a fresh engine instance:
// handshake, position, "go perft <depth>", then the metrics summary
// line. The node count is the trailing integer of that line. The engine
// is always stopped before returning.
func Perft(ctx context.Context, loop engine.Loop, position string, depth int, timeout time.Duration) (int64, error) {
	if loop == nil {
		return 0, errors.New("engine loop is required")
	}
	if depth < 1 {
		return 0, errors.New("depth must be at least 1")
	}
	if strings.TrimSpace(position) == "" {
		position = "position startpos"
	}
	if timeout <= 0 {
		timeout = defaultMoveTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lines := linechan.New()
	controller := engine.New(loop, lines)
	controller.Start()
	defer func() {
		controller.Stop()
		lines.Finish()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controller.SendCommand(uci.CmdInit)
	if _, ok := awaitLine(waitCtx, lines, uci.AckInit); !ok {
		return 0, fmt.Errorf("handshake timed out awaiting %s", uci.AckInit)
	}

	controller.SendCommand(position)
	controller.SendCommand(fmt.Sprintf("go perft %d", depth))

	line, ok := awaitLine(waitCtx, lines, uci.PrefixNodesSearched)
	if !ok {
		return 0, errors.New("perft timed out awaiting node count")
	}
	nodes, parsed := uci.ParseNodesSearched(line)
	if !parsed {
		return 0, fmt.Errorf("malformed perft summary %q", line)
	}
	return nodes, nil
}

func awaitLine(ctx context.Context, lines *linechan.Channel, prefix string) (string, bool) {
	for {
		line, ok := lines.Next(ctx)
		if !ok {
			return "", false
		}
		if uci.HasPrefix(line, prefix) {
			return line, true
		}
	}
}
