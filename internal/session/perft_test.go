package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trickfest/StockfishEmbedded/internal/uci"
)

func TestPerftReturnsNodeCount(t *testing.T) {
	t.Parallel()

	stub := uci.NewStub()
	nodes, err := Perft(context.Background(), stub.Run, "position startpos", 4, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(197281), nodes)
}

func TestPerftDefaultsPositionAndValidates(t *testing.T) {
	t.Parallel()

	stub := uci.NewStub()
	nodes, err := Perft(context.Background(), stub.Run, "  ", 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(20), nodes)

	_, err = Perft(context.Background(), nil, "", 1, time.Second)
	assert.Error(t, err)

	_, err = Perft(context.Background(), stub.Run, "", 0, time.Second)
	assert.Error(t, err)
}

func TestPerftTimesOutOnSilentEngine(t *testing.T) {
	t.Parallel()

	silent := func(in io.Reader, out io.Writer) {
		buf := make([]byte, 1024)
		for {
			if _, err := in.Read(buf); err != nil {
				return
			}
		}
	}

	started := time.Now()
	_, err := Perft(context.Background(), silent, "", 2, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(started), 3*time.Second)
}
