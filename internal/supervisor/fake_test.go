package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/process"
)

var errKilled = errors.New("signal: killed")

// fakeHandle is an in-memory process. Output is fed with out/errOut and the
// process ends with exit.
type fakeHandle struct {
	pid int

	stdinR *io.PipeReader
	stdinW *io.PipeWriter
	outR   *io.PipeReader
	outW   *io.PipeWriter
	errR   *io.PipeReader
	errW   *io.PipeWriter

	commands chan string
	done     chan struct{}
	once     sync.Once
	waitErr  error
	killed   atomic.Bool
}

var nextPID atomic.Int64

// newFakeHandle builds a process; a wedged one never reads its stdin.
func newFakeHandle(wedged bool) *fakeHandle {
	h := &fakeHandle{
		pid:      int(nextPID.Add(1)) + 1000,
		commands: make(chan string, 64),
		done:     make(chan struct{}),
	}
	h.stdinR, h.stdinW = io.Pipe()
	h.outR, h.outW = io.Pipe()
	h.errR, h.errW = io.Pipe()
	if wedged {
		return h
	}
	go func() {
		sc := bufio.NewScanner(h.stdinR)
		for sc.Scan() {
			h.commands <- sc.Text()
		}
	}()
	return h
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Stdin() io.WriteCloser { return h.stdinW }
func (h *fakeHandle) Stdout() io.Reader     { return h.outR }
func (h *fakeHandle) Stderr() io.Reader     { return h.errR }

func (h *fakeHandle) Wait() error {
	<-h.done
	return h.waitErr
}

func (h *fakeHandle) Kill() error {
	h.killed.Store(true)
	h.exit(errKilled)
	return nil
}

func (h *fakeHandle) exit(err error) {
	h.once.Do(func() {
		h.waitErr = err
		_ = h.outW.Close()
		_ = h.errW.Close()
		_ = h.stdinR.Close()
		close(h.done)
	})
}

func (h *fakeHandle) out(s string)    { _, _ = io.WriteString(h.outW, s) }
func (h *fakeHandle) errOut(s string) { _, _ = io.WriteString(h.errW, s) }

// nextCommand returns the next line written to stdin.
func (h *fakeHandle) nextCommand(t *testing.T) string {
	t.Helper()
	select {
	case c := <-h.commands:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
		return ""
	}
}

type fakeLauncher struct {
	mu      sync.Mutex
	specs   []process.Spec
	handles []*fakeHandle
	err     error
	wedged  bool
}

func (l *fakeLauncher) Launch(ctx context.Context, spec process.Spec) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	h := newFakeHandle(l.wedged)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) wedge() {
	l.mu.Lock()
	l.wedged = true
	l.mu.Unlock()
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

func (l *fakeLauncher) last() (*fakeHandle, process.Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[len(l.handles)-1], l.specs[len(l.specs)-1]
}

// harness wires a supervisor to a fake launcher and a recording bus.
type harness struct {
	t        *testing.T
	dir      string
	sup      *Supervisor
	launcher *fakeLauncher
	events   <-chan events.Event
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	dir := t.TempDir()
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(4096)
	t.Cleanup(cancel)

	l := &fakeLauncher{}
	opts := Options{
		Dir:          dir,
		SettingsPath: filepath.Join(dir, "settings.json"),
		Bus:          bus,
		Launcher:     l,
		StopTimeout:  2 * time.Second,
		RestartDelay: time.Millisecond,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	sup, err := New(opts)
	require.NoError(t, err)
	h := &harness{t: t, dir: dir, sup: sup, launcher: l, events: ch}
	t.Cleanup(func() { sup.Kill() })
	return h
}

func (h *harness) writeFile(name, data string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(filepath.Join(h.dir, name), []byte(data), 0o644))
}

// started launches the server with a jar present and returns its handle.
func (h *harness) started() *fakeHandle {
	h.t.Helper()
	h.writeFile("server.jar", "")
	require.NoError(h.t, h.sup.Start(context.Background()))
	fh, _ := h.launcher.last()
	return fh
}

// online launches the server and drives it to online.
func (h *harness) online() *fakeHandle {
	h.t.Helper()
	fh := h.started()
	fh.out("[12:00:00] [Server thread/INFO]: Done (4.2s)! For help, type \"help\"\n")
	h.waitState(StateOnline)
	return fh
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.sup.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state %s, want %s", h.sup.State(), want)
}

// waitEvent consumes events until pred matches.
func (h *harness) waitEvent(pred func(events.Event) bool) events.Event {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if pred(e) {
				return e
			}
		case <-deadline:
			h.t.Fatal("expected event not published")
			return events.Event{}
		}
	}
}

// drain returns every event published so far, waiting briefly for stragglers.
func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-h.events:
			out = append(out, e)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func ofType(evs []events.Event, typ events.Type) []events.Event {
	var out []events.Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func isLog(line string) func(events.Event) bool {
	return func(e events.Event) bool { return e.Type == events.TypeLog && e.Line == line }
}
