// Package streambridge adapts the command queue and the engine's output
// stream to Go's io interfaces. The engine loop reads commands through
// CommandReader as if they were stdin and writes through LineWriter as
// if it were stdout; neither side touches process-wide streams.
package streambridge

import (
	"io"

	"github.com/Trickfest/StockfishEmbedded/internal/cmdqueue"
)

// LineSink receives one complete output line at a time, terminator
// stripped. Implementations are invoked from the engine worker thread.
type LineSink interface {
	WriteLine(line string)
}

// SinkFunc adapts a function to the LineSink interface.
type SinkFunc func(line string)

// WriteLine calls f(line).
func (f SinkFunc) WriteLine(line string) { f(line) }

// MultiSink fans one line out to several sinks, in order.
type MultiSink []LineSink

// WriteLine forwards the line to every sink.
func (m MultiSink) WriteLine(line string) {
	for _, sink := range m {
		if sink != nil {
			sink.WriteLine(line)
		}
	}
}

// CommandReader presents a command queue as a sequential byte stream.
// Each dequeued command is delivered with exactly one trailing newline,
// in FIFO order, never interleaving bytes from two commands. A closed
// and drained queue reads as io.EOF.
type CommandReader struct {
	queue   *cmdqueue.Queue
	pending []byte
}

// NewCommandReader binds a reader to a queue.
func NewCommandReader(queue *cmdqueue.Queue) *CommandReader {
	return &CommandReader{queue: queue}
}

// Read blocks on the queue when no buffered bytes remain.
func (r *CommandReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.pending) == 0 {
		line, ok := r.queue.Pop()
		if !ok {
			return 0, io.EOF
		}
		// Strip any terminators the caller supplied, then append
		// exactly one so the engine's line parser always frames.
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		if line == "" {
			continue
		}
		r.pending = append(r.pending[:0], line...)
		r.pending = append(r.pending, '\n')
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// LineWriter frames a byte stream into lines and forwards each complete
// line to a sink. Carriage returns are dropped so CRLF output frames the
// same as LF output.
type LineWriter struct {
	sink LineSink
	buf  []byte
}

// NewLineWriter binds a writer to a sink.
func NewLineWriter(sink LineSink) *LineWriter {
	return &LineWriter{sink: sink}
}

// Write buffers bytes and emits a line per newline encountered.
func (w *LineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\r':
		case '\n':
			w.flush()
		default:
			w.buf = append(w.buf, b)
		}
	}
	return len(p), nil
}

// Flush emits any buffered partial line. Used at shutdown so a final
// unterminated line is not lost.
func (w *LineWriter) Flush() {
	w.flush()
}

func (w *LineWriter) flush() {
	if len(w.buf) == 0 || w.sink == nil {
		w.buf = w.buf[:0]
		return
	}
	w.sink.WriteLine(string(w.buf))
	w.buf = w.buf[:0]
}
