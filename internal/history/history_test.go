package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("unavailable")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memSink) Recent(context.Context, int) ([]Event, error) { return m.events, nil }

func TestRecorder_DeliversInOrderAndCloses(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	r := NewRecorder(nil, a, b)
	r.Record(Event{Type: EventState, State: "starting"})
	r.Record(Event{Type: EventJoin, Player: "Steve"})
	r.Record(Event{Type: EventLeave, Player: "Steve"})
	require.NoError(t, r.Close())

	for _, s := range []*memSink{a, b} {
		require.Len(t, s.events, 3)
		assert.Equal(t, EventState, s.events[0].Type)
		assert.Equal(t, "Steve", s.events[1].Player)
		assert.Equal(t, EventLeave, s.events[2].Type)
		assert.False(t, s.events[0].OccurredAt.IsZero(), "timestamp stamped")
		assert.True(t, s.closed)
	}
}

func TestRecorder_KeepsExplicitTime(t *testing.T) {
	s := &memSink{}
	r := NewRecorder(nil, s)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.Record(Event{Type: EventInstall, OccurredAt: at})
	require.NoError(t, r.Close())
	require.Len(t, s.events, 1)
	assert.Equal(t, at, s.events[0].OccurredAt)
}

func TestRecorder_SinkErrorDoesNotStopOthers(t *testing.T) {
	bad, good := &memSink{fail: true}, &memSink{}
	r := NewRecorder(nil, bad, good)
	r.Record(Event{Type: EventState, State: "online"})
	require.NoError(t, r.Close())
	assert.Len(t, good.events, 1)
	assert.Empty(t, bad.events)
}

func TestRecorder_NilAndClosedAreSafe(t *testing.T) {
	var nilRec *Recorder
	nilRec.Record(Event{Type: EventState})
	assert.NoError(t, nilRec.Close())
	_, ok := nilRec.Querier()
	assert.False(t, ok)

	s := &memSink{}
	r := NewRecorder(nil, s)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	r.Record(Event{Type: EventState})
	assert.Empty(t, s.events)
}

func TestRecorder_Querier(t *testing.T) {
	s := &memSink{}
	r := NewRecorder(nil, s)
	defer func() { _ = r.Close() }()
	q, ok := r.Querier()
	require.True(t, ok)
	assert.Same(t, s, q)
}
