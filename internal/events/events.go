// Package events fans supervisor events out to any number of observers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeState        Type = "state"
	TypeLog          Type = "log"
	TypePlayers      Type = "players"
	TypeNotification Type = "notification"
)

// Kind classifies transient notifications.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Stream names the output stream a log line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	StreamSystem Stream = "system"
)

type Notification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Event is a single broadcast. Only the fields relevant to Type are set.
type Event struct {
	Type         Type          `json:"type"`
	Time         time.Time     `json:"time"`
	State        string        `json:"state,omitempty"`
	Line         string        `json:"line,omitempty"`
	Stream       Stream        `json:"stream,omitempty"`
	Players      []string      `json:"players,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(e Event)
}

// DefaultBuffer is the per-subscriber channel capacity used when none is given.
const DefaultBuffer = 256

// Bus is a non-blocking broadcaster. A subscriber whose channel is full misses
// events; delivery is best-effort.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers an observer. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of registered observers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Notify publishes a transient notification through p.
func Notify(p Publisher, kind Kind, msg string) {
	if p == nil {
		return
	}
	p.Publish(Event{Type: TypeNotification, Notification: &Notification{Kind: kind, Message: msg}})
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
