package supervisor

import (
	"fmt"
	"io"
	"sync"

	"github.com/loykin/craftvisor/internal/console"
	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/history"
	"github.com/loykin/craftvisor/internal/logparse"
	"github.com/loykin/craftvisor/internal/metrics"
)

// watch drains both output streams of m, then reaps it.
func (s *Supervisor) watch(m *managed) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readStream(m, m.h.Stdout(), events.StreamStdout)
	}()
	go func() {
		defer wg.Done()
		s.readStream(m, m.h.Stderr(), events.StreamStderr)
	}()
	wg.Wait()
	s.handleExit(m, m.h.Wait())
}

func (s *Supervisor) readStream(m *managed, r io.Reader, stream events.Stream) {
	acc := console.NewAccumulator(func(line string) { s.handleLine(m, stream, line) })
	if _, err := io.Copy(acc, r); err != nil {
		// a killed process closes its pipes under the reader
		s.log.Debug("output stream ended", "stream", stream, "error", err)
	}
	acc.Flush()
}

func (s *Supervisor) handleLine(m *managed, stream events.Stream, line string) {
	metrics.IncConsoleLine(string(stream))
	s.appendLine(stream, line)

	if stream == events.StreamStdout && logparse.IsReady(line) {
		s.mu.Lock()
		if s.proc == m && s.state == StateStarting {
			s.setStateLocked(StateOnline)
		}
		s.mu.Unlock()
	}

	ev, ok := logparse.Parse(line)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// lines still draining from a killed process must not repopulate the roster
	if s.proc != m || !s.roster.Apply(ev) {
		return
	}
	s.publishPlayers()
	typ := history.EventJoin
	if ev.Kind == logparse.Leave {
		typ = history.EventLeave
	}
	s.opts.History.Record(history.Event{Type: typ, Player: ev.Player})
}

func (s *Supervisor) handleExit(m *managed, err error) {
	msg := "process exited cleanly"
	if err != nil {
		msg = fmt.Sprintf("process exited: %v", err)
	}

	s.mu.Lock()
	if s.proc == m {
		s.detachLocked()
		metrics.IncStop("exit")
	}
	s.mu.Unlock()

	s.log.Info("server process ended", "pid", m.h.PID(), "error", err)
	s.appendLine(events.StreamSystem, msg)
	close(m.exited)
}

// appendLine buffers, broadcasts and mirrors one console line.
func (s *Supervisor) appendLine(stream events.Stream, line string) {
	s.logs.Append(line)
	s.bus.Publish(events.Event{Type: events.TypeLog, Line: line, Stream: stream})
	if w := s.opts.ConsoleLog; w != nil {
		s.consoleMu.Lock()
		_, _ = io.WriteString(w, line+"\n")
		s.consoleMu.Unlock()
	}
}
