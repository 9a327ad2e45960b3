// Package craftvisor embeds a supervised Minecraft server: process lifecycle,
// console scraping, allow-list and properties management, jar installs and an
// HTTP control API, wired from a single Config.
package craftvisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/craftvisor/internal/config"
	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/history"
	"github.com/loykin/craftvisor/internal/history/factory"
	"github.com/loykin/craftvisor/internal/installer"
	"github.com/loykin/craftvisor/internal/metrics"
	"github.com/loykin/craftvisor/internal/properties"
	iapi "github.com/loykin/craftvisor/internal/server"
	"github.com/loykin/craftvisor/internal/supervisor"
	"github.com/loykin/craftvisor/internal/whitelist"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Status = supervisor.Status

type State = supervisor.State

type StopResult = supervisor.StopResult

type Event = events.Event

type WhitelistEntry = whitelist.Entry

type HistoryEvent = history.Event

const (
	StateOffline  = supervisor.StateOffline
	StateStarting = supervisor.StateStarting
	StateOnline   = supervisor.StateOnline
	StateStopping = supervisor.StateStopping
)

var (
	ErrNoArtifact    = supervisor.ErrNoArtifact
	ErrNotRunning    = supervisor.ErrNotRunning
	ErrStopTimedOut  = supervisor.ErrStopTimedOut
	ErrServerRunning = installer.ErrServerRunning
	ErrHeld          = supervisor.ErrHeld
)

// LoadConfig reads a craftvisor.toml; an empty path yields defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// App is one supervised server with all of its collaborators.
type App struct {
	conf *Config
	log  *slog.Logger

	bus     *events.Bus
	sup     *supervisor.Supervisor
	wl      *whitelist.Store
	props   *properties.Store
	inst    *installer.Installer
	rec     *history.Recorder
	sampler *metrics.ResourceSampler

	console io.WriteCloser
}

// New wires an App from c. The game server is not started.
func New(c *Config, log *slog.Logger) (*App, error) {
	if c == nil {
		return nil, errors.New("craftvisor: config is required")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{conf: c, log: log, bus: events.NewBus()}

	if c.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		a.rec = history.NewRecorder(log, sink)
	}

	var mirror io.Writer
	if w := c.ConsoleFile().Writer(); w != nil {
		a.console = w
		mirror = w
	}

	sup, err := supervisor.New(supervisor.Options{
		Dir:          c.ServerDir,
		SettingsPath: c.SettingsFile,
		Java:         c.Java,
		JVMArgs:      c.JVMArgs,
		Bus:          a.bus,
		Logger:       log,
		History:      a.rec,
		LogCapacity:  c.LogCapacity,
		StopTimeout:  c.StopTimeout,
		RestartDelay: c.RestartDelay,
		ConsoleLog:   mirror,
	})
	if err != nil {
		_ = a.closeSinks()
		return nil, err
	}
	a.sup = sup
	a.wl = whitelist.New(filepath.Join(c.ServerDir, whitelist.FileName), sup, log)
	a.props = properties.New(filepath.Join(c.ServerDir, properties.FileName), log)
	a.inst = installer.New(installer.Options{
		Dir:     c.ServerDir,
		Server:  sup,
		Bus:     a.bus,
		Logger:  log,
		History: a.rec,
	})
	a.sampler = metrics.NewResourceSampler(metrics.SamplerConfig{})
	return a, nil
}

func (a *App) Config() *Config { return a.conf }

func (a *App) Start(ctx context.Context) error              { return a.sup.Start(ctx) }
func (a *App) Stop(ctx context.Context) (StopResult, error) { return a.sup.Stop(ctx) }
func (a *App) Restart(ctx context.Context) error            { return a.sup.Restart(ctx) }
func (a *App) Kill() bool                                   { return a.sup.Kill() }
func (a *App) SendCommand(text string) error                { return a.sup.SendCommand(text) }
func (a *App) Status() Status                               { return a.sup.Status() }
func (a *App) Logs() []string                               { return a.sup.Logs() }
func (a *App) Players() []string                            { return a.sup.Players() }

// Subscribe returns a feed of state, log, players and notification events.
func (a *App) Subscribe(buffer int) (<-chan Event, func()) { return a.bus.Subscribe(buffer) }

func (a *App) Whitelist() []WhitelistEntry             { return a.wl.Read() }
func (a *App) WhitelistAdd(name string) (bool, error) { return a.wl.Add(name) }
func (a *App) WhitelistRemove(name string) error      { return a.wl.Remove(name) }

// Properties returns server.properties as a plain map.
func (a *App) Properties() map[string]string { return a.props.Read().ToMap() }

// SetProperty updates one key, keeping the rest of the file.
func (a *App) SetProperty(key, value string) error {
	return a.props.Update(func(m *properties.Map) { m.Set(key, value) })
}

// Install replaces the server jar. The server must be offline.
func (a *App) Install(ctx context.Context, rawURL, filename string) (string, error) {
	return a.inst.Install(ctx, rawURL, filename)
}

// SetMemory changes the heap size used from the next start.
func (a *App) SetMemory(mem string) error { return cfg.SaveMemory(a.conf.SettingsFile, mem) }

// History returns the latest recorded events when the configured sink can be
// queried.
func (a *App) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	q, ok := a.rec.Querier()
	if !ok {
		return nil, errors.New("craftvisor: history sink is not queryable")
	}
	return q.Recent(ctx, limit)
}

// Handler returns the HTTP control API mounted under basePath.
func (a *App) Handler(basePath string) http.Handler {
	return iapi.NewRouter(a.routerConfig(basePath)).Handler()
}

func (a *App) routerConfig(basePath string) iapi.Config {
	rc := iapi.Config{
		BasePath:     basePath,
		Supervisor:   a.sup,
		Whitelist:    a.wl,
		Properties:   a.props,
		Installer:    a.inst,
		Events:       a.bus,
		Resources:    a.sampler,
		SettingsPath: a.conf.SettingsFile,
		Logger:       a.log,
	}
	if q, ok := a.rec.Querier(); ok {
		rc.History = q
	}
	return rc
}

// Router exposes the route set for mounting into an existing gin engine.
func (a *App) Router(basePath string) *iapi.Router { return iapi.NewRouter(a.routerConfig(basePath)) }

// StartSampler polls CPU and memory of the server process until Close.
func (a *App) StartSampler(ctx context.Context) { a.sampler.Start(ctx, a.sup.PID) }

// RegisterMetrics registers the server and process collectors with r.
func (a *App) RegisterMetrics(r prometheus.Registerer) error {
	return errors.Join(metrics.Register(r), a.sampler.Register(r))
}

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Close stops the game server, killing it if it ignores the stop command,
// then flushes history and closes the console mirror.
func (a *App) Close(ctx context.Context) error {
	res, err := a.sup.Stop(ctx)
	if err != nil || res.Outcome == supervisor.StopTimedOut {
		a.log.Warn("server did not stop in time, killing", "error", err)
		a.sup.Kill()
	} else if !a.sup.Offline() {
		// still starting: stop is only honoured once online
		a.sup.Kill()
	}
	a.sampler.Stop()
	return a.closeSinks()
}

func (a *App) closeSinks() error {
	var errs []error
	if err := a.rec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close history: %w", err))
	}
	if a.console != nil {
		if err := a.console.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close console log: %w", err))
		}
	}
	return errors.Join(errs...)
}
