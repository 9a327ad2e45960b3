package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/craftvisor/internal/config"
	"github.com/loykin/craftvisor/internal/console"
	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/fsutil"
	"github.com/loykin/craftvisor/internal/history"
	"github.com/loykin/craftvisor/internal/logparse"
	"github.com/loykin/craftvisor/internal/metrics"
	"github.com/loykin/craftvisor/internal/process"
)

var (
	ErrNoArtifact   = errors.New("no server jar found")
	ErrNotRunning   = errors.New("server is not running")
	ErrStopTimedOut = errors.New("server did not exit before the stop timeout")
	ErrHeld         = errors.New("server is held offline by an install")
)

const (
	DefaultJava         = "java"
	DefaultStopTimeout  = 10 * time.Second
	DefaultRestartDelay = 3 * time.Second

	eulaFile = "eula.txt"
)

// Options configures a Supervisor. Dir is required; everything else has a
// usable default.
type Options struct {
	Dir          string // server directory holding the jar, eula.txt and server.properties
	SettingsPath string // settings JSON read at every start; empty uses defaults
	Java         string
	JVMArgs      []string // inserted before -jar

	Bus      events.Publisher
	Launcher process.Launcher
	Locator  ArtifactLocator
	Logger   *slog.Logger
	History  *history.Recorder

	LogCapacity  int
	StopTimeout  time.Duration
	RestartDelay time.Duration

	// ConsoleLog, when set, receives a copy of every line the server prints.
	ConsoleLog io.Writer
}

// Status is a point-in-time snapshot.
type Status struct {
	State            State     `json:"state"`
	MemoryAllocation string    `json:"memoryAllocation"`
	Players          []string  `json:"players"`
	PID              int       `json:"pid,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitzero"`
}

// Supervisor owns a single game server process. All methods are safe for
// concurrent use.
type Supervisor struct {
	opts   Options
	log    *slog.Logger
	bus    events.Publisher
	logs   *console.Buffer
	roster *logparse.Roster

	mu        sync.Mutex
	state     State
	proc      *managed
	memory    string
	startedAt time.Time
	held      bool

	consoleMu sync.Mutex
}

type managed struct {
	h       process.Handle
	exited  chan struct{}
	stdinMu sync.Mutex
}

func (m *managed) write(s string) error {
	m.stdinMu.Lock()
	defer m.stdinMu.Unlock()
	_, err := io.WriteString(m.h.Stdin(), s)
	return err
}

func New(opts Options) (*Supervisor, error) {
	if opts.Dir == "" {
		return nil, errors.New("supervisor: server directory is required")
	}
	if opts.Java == "" {
		opts.Java = DefaultJava
	}
	if opts.Bus == nil {
		opts.Bus = events.Discard
	}
	if opts.Launcher == nil {
		opts.Launcher = process.ExecLauncher{}
	}
	if opts.Locator == nil {
		opts.Locator = DefaultLocator()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = console.DefaultCapacity
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.RestartDelay < 0 {
		opts.RestartDelay = 0
	}
	return &Supervisor{
		opts:   opts,
		log:    opts.Logger.With("component", "supervisor"),
		bus:    opts.Bus,
		logs:   console.NewBuffer(opts.LogCapacity),
		roster: logparse.NewRoster(),
	}, nil
}

// Dir returns the server directory.
func (s *Supervisor) Dir() string { return s.opts.Dir }

// Start launches the server. It is a no-op when the server is not offline and
// returns as soon as the process has been spawned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOffline {
		return nil
	}
	if s.held {
		s.notify(events.KindError, "An install is in progress. Start the server when it finishes.")
		return ErrHeld
	}

	settings := config.LoadSettings(s.opts.SettingsPath, s.log)
	if err := s.ensureEULA(); err != nil {
		s.notify(events.KindError, "Could not accept the EULA: "+err.Error())
		return err
	}
	jar, err := s.opts.Locator.Locate(s.opts.Dir)
	if err != nil {
		s.log.Warn("no artifact to launch", "dir", s.opts.Dir, "error", err)
		s.notify(events.KindError, "No server jar found. Install a server first.")
		if !errors.Is(err, ErrNoArtifact) {
			err = fmt.Errorf("%w: %v", ErrNoArtifact, err)
		}
		return err
	}

	s.setStateLocked(StateStarting)
	s.clearRosterLocked()

	spec := process.Spec{Name: s.opts.Java, Args: s.launchArgs(settings.MemoryAllocation, jar), Dir: s.opts.Dir}
	h, err := s.opts.Launcher.Launch(ctx, spec)
	if err != nil {
		s.setStateLocked(StateOffline)
		s.log.Error("launch failed", "cmd", spec.String(), "error", err)
		s.notify(events.KindError, "Failed to start server: "+err.Error())
		return fmt.Errorf("launch %s: %w", filepath.Base(jar), err)
	}

	m := &managed{h: h, exited: make(chan struct{})}
	s.proc = m
	s.memory = settings.MemoryAllocation
	s.startedAt = time.Now()
	metrics.IncStart()
	s.log.Info("server launched", "pid", h.PID(), "jar", filepath.Base(jar), "memory", settings.MemoryAllocation)
	go s.watch(m)
	return nil
}

func (s *Supervisor) launchArgs(mem, jar string) []string {
	args := make([]string, 0, len(s.opts.JVMArgs)+5)
	args = append(args, "-Xms"+mem, "-Xmx"+mem)
	args = append(args, s.opts.JVMArgs...)
	return append(args, "-jar", jar, "nogui")
}

func (s *Supervisor) ensureEULA() error {
	p := filepath.Join(s.opts.Dir, eulaFile)
	if fsutil.Exists(p) {
		return nil
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create server dir: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p, []byte("eula=true\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", eulaFile, err)
	}
	s.log.Info("accepted EULA", "path", p)
	return nil
}

// HoldOffline keeps the server offline until release is called; Start fails
// with ErrHeld meanwhile. ok is false when a process exists or another hold
// is active.
func (s *Supervisor) HoldOffline() (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOffline || s.held {
		return nil, false
	}
	s.held = true
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.held = false
			s.mu.Unlock()
		})
	}, true
}

// Stop asks the server to shut down and waits for it to exit, at most
// StopTimeout or until ctx is done. It only acts on an online server.
// The stop command is written without holding s.mu so a server that no
// longer reads stdin can still be killed.
func (s *Supervisor) Stop(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	m := s.proc
	if m == nil || s.state != StateOnline {
		s.mu.Unlock()
		return StopResult{Outcome: StopNotRunning}, nil
	}
	s.setStateLocked(StateStopping)
	s.mu.Unlock()

	began := time.Now()
	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	sent := make(chan error, 1)
	go func() { sent <- m.write("stop\n") }()
	for {
		select {
		case err := <-sent:
			sent = nil
			if err == nil {
				continue
			}
			select {
			case <-m.exited:
				return StopResult{Outcome: StopClean, Elapsed: time.Since(began)}, nil
			default:
			}
			s.mu.Lock()
			gone := s.proc != m
			if !gone && s.state == StateStopping {
				s.setStateLocked(StateOnline)
			}
			s.mu.Unlock()
			if gone {
				// killed meanwhile; its exit is on the way
				continue
			}
			return StopResult{}, fmt.Errorf("send stop: %w", err)
		case <-m.exited:
			return StopResult{Outcome: StopClean, Elapsed: time.Since(began)}, nil
		case <-timer.C:
			s.log.Warn("stop timed out", "timeout", s.opts.StopTimeout)
			return StopResult{Outcome: StopTimedOut, Elapsed: time.Since(began)}, nil
		case <-ctx.Done():
			return StopResult{Outcome: StopTimedOut, Elapsed: time.Since(began)}, ctx.Err()
		}
	}
}

// Restart stops the server, waits RestartDelay and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	res, err := s.Stop(ctx)
	if err != nil {
		return err
	}
	if res.Outcome == StopTimedOut {
		return ErrStopTimedOut
	}
	if d := s.opts.RestartDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Start(ctx)
}

// Kill terminates the process immediately and reports whether there was one.
// It never waits on stdin; closing it releases any blocked writer.
func (s *Supervisor) Kill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.proc
	if m == nil {
		return false
	}
	if err := m.h.Kill(); err != nil {
		s.log.Warn("kill failed", "pid", m.h.PID(), "error", err)
	}
	_ = m.h.Stdin().Close()
	s.detachLocked()
	metrics.IncStop("kill")
	s.log.Info("server killed", "pid", m.h.PID())
	return true
}

// SendCommand writes a console command to the server. No validation is done
// on the text.
func (s *Supervisor) SendCommand(text string) error {
	s.mu.Lock()
	m := s.proc
	s.mu.Unlock()
	if m == nil {
		return ErrNotRunning
	}
	if err := m.write(text + "\n"); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Online reports whether the server has finished starting.
func (s *Supervisor) Online() bool { return s.State() == StateOnline }

// Offline reports whether no server process is running.
func (s *Supervisor) Offline() bool { return s.State() == StateOffline }

// PID returns the process id, or 0 when nothing is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.h.PID()
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state, MemoryAllocation: s.memory, StartedAt: s.startedAt}
	if s.proc != nil {
		st.PID = s.proc.h.PID()
	}
	s.mu.Unlock()
	if st.PID == 0 {
		// offline: report what the next start would use
		st.MemoryAllocation = config.LoadSettings(s.opts.SettingsPath, s.log).MemoryAllocation
	}
	st.Players = s.roster.List()
	return st
}

// Logs returns the buffered console lines, oldest first.
func (s *Supervisor) Logs() []string { return s.logs.Lines() }

// Players returns the online players, sorted.
func (s *Supervisor) Players() []string { return s.roster.List() }

// setStateLocked must be called with s.mu held.
func (s *Supervisor) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	metrics.RecordStateTransition(from.String(), to.String())
	s.bus.Publish(events.Event{Type: events.TypeState, State: to.String()})
	s.opts.History.Record(history.Event{Type: history.EventState, State: to.String(), Detail: "from " + from.String()})
	s.log.Info("state changed", "from", from.String(), "to", to.String())
}

// detachLocked forgets the current process and returns to offline.
func (s *Supervisor) detachLocked() {
	s.proc = nil
	s.startedAt = time.Time{}
	s.setStateLocked(StateOffline)
	s.clearRosterLocked()
}

func (s *Supervisor) clearRosterLocked() {
	if s.roster.Clear() {
		s.publishPlayers()
	}
}

func (s *Supervisor) publishPlayers() {
	players := s.roster.List()
	metrics.SetPlayersOnline(len(players))
	s.bus.Publish(events.Event{Type: events.TypePlayers, Players: players})
}

func (s *Supervisor) notify(kind events.Kind, msg string) { events.Notify(s.bus, kind, msg) }
