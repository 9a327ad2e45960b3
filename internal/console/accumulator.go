// Package console turns raw process output into complete lines and keeps a
// bounded history of them.
package console

import (
	"bytes"
	"sync"
)

// maxPending bounds how much unterminated output is held before it is emitted
// as a line anyway.
const maxPending = 1024 * 1024

// Accumulator holds partial output until a newline arrives and hands complete
// lines to emit. Chunk boundaries are invisible to the consumer.
type Accumulator struct {
	mu      sync.Mutex
	pending []byte
	emit    func(string)
}

func NewAccumulator(emit func(string)) *Accumulator {
	return &Accumulator{emit: emit}
}

// Write implements io.Writer so an Accumulator can sit behind any stream.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.mu.Lock()
	a.pending = append(a.pending, p...)
	var lines []string
	for {
		i := bytes.IndexByte(a.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, trimCR(a.pending[:i]))
		a.pending = a.pending[i+1:]
	}
	if len(a.pending) > maxPending {
		lines = append(lines, trimCR(a.pending))
		a.pending = nil
	}
	if len(a.pending) == 0 {
		a.pending = nil
	}
	a.mu.Unlock()

	for _, l := range lines {
		a.emit(l)
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	rest := a.pending
	a.pending = nil
	a.mu.Unlock()
	if len(rest) > 0 {
		a.emit(trimCR(rest))
	}
}

func trimCR(b []byte) string {
	return string(bytes.TrimSuffix(b, []byte{'\r'}))
}
