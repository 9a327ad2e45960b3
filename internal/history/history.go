package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventType defines the kind of server event.
type EventType string

const (
	EventState   EventType = "state"
	EventJoin    EventType = "join"
	EventLeave   EventType = "leave"
	EventInstall EventType = "install"
)

// Event is a server event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	State      string    `json:"state,omitempty"`
	Player     string    `json:"player,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read back recent events.
type Querier interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

const (
	recorderBuffer = 256
	sendTimeout    = 5 * time.Second
)

// Recorder forwards events to sinks from a single goroutine so callers on hot
// paths never block on a slow database. Events are dropped when the queue is
// full. The zero value and a nil *Recorder discard everything.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
	ch    chan Event
	done  chan struct{}
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder for sinks. Close must be called to flush.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks: sinks,
		log:   log,
		ch:    make(chan Event, recorderBuffer),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go r.run()
	return r
}

// Record enqueues e, stamping OccurredAt when unset.
func (r *Recorder) Record(e Event) {
	if r == nil || r.ch == nil || len(r.sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		r.log.Warn("history queue full, dropping event", "type", e.Type)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink send failed", "type", e.Type, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events and closes sinks implementing io.Closer.
func (r *Recorder) Close() error {
	if r == nil || r.ch == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Querier returns the first sink able to read back events, if any.
func (r *Recorder) Querier() (Querier, bool) {
	if r == nil {
		return nil, false
	}
	for _, s := range r.sinks {
		if q, ok := s.(Querier); ok {
			return q, true
		}
	}
	return nil, false
}
