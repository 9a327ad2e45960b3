package console

import "sync"

// DefaultCapacity is the number of lines kept for observers joining late.
const DefaultCapacity = 2000

// Buffer is a bounded FIFO of console lines. When full the oldest line is evicted.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	start int // index of the oldest line once the ring has wrapped
	max   int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{max: capacity, lines: make([]string, 0, min(capacity, 256))}
}

func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) < b.max {
		b.lines = append(b.lines, line)
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.max
}

// Lines returns a copy in insertion order, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.start:]...)
	out = append(out, b.lines[:b.start]...)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
