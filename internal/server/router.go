package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/history"
	"github.com/loykin/craftvisor/internal/metrics"
	"github.com/loykin/craftvisor/internal/properties"
	"github.com/loykin/craftvisor/internal/supervisor"
	"github.com/loykin/craftvisor/internal/whitelist"
)

// Supervisor is the process control surface the router drives.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (supervisor.StopResult, error)
	Restart(ctx context.Context) error
	Kill() bool
	SendCommand(text string) error
	Status() supervisor.Status
	Logs() []string
}

type Whitelist interface {
	Read() []whitelist.Entry
	Add(name string) (bool, error)
	Remove(name string) error
}

type Properties interface {
	Read() *properties.Map
	Write(m *properties.Map) error
}

type Installer interface {
	Install(ctx context.Context, rawURL, filename string) (string, error)
}

// Subscriber hands out event streams for GET /events.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

type Resources interface {
	Latest() (metrics.Sample, bool)
	History() []metrics.Sample
}

// Config wires the router. Only Supervisor is required; routes for a nil
// collaborator are not registered.
type Config struct {
	BasePath     string
	Supervisor   Supervisor
	Whitelist    Whitelist
	Properties   Properties
	Installer    Installer
	Events       Subscriber
	Resources    Resources
	History      history.Querier
	SettingsPath string // enables PUT /settings/memory
	Logger       *slog.Logger
}

// Router provides embeddable HTTP handlers for one game server.
// Endpoints, relative to basePath:
//
//	GET    /status
//	POST   /start | /stop | /restart | /kill
//	POST   /command            {"command": "say hi"}
//	GET    /logs               ?tail=N
//	GET    /events             server-sent events
//	GET    /whitelist
//	POST   /whitelist          {"name": "Steve"}
//	DELETE /whitelist/:name
//	GET    /properties
//	PUT    /properties         {"motd": "..."}
//	POST   /install            {"url": "...", "filename": "paper.jar"}
//	PUT    /settings/memory    {"memoryAllocation": "4G"}
//	GET    /resources
//	GET    /history            ?limit=N
type Router struct {
	cfg      Config
	basePath string
	log      *slog.Logger
}

func NewRouter(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{cfg: cfg, basePath: sanitizeBase(cfg.BasePath), log: cfg.Logger.With("component", "http")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register adds the routes to an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.POST("/kill", r.handleKill)
	group.POST("/command", r.handleCommand)
	group.GET("/logs", r.handleLogs)
	if r.cfg.Events != nil {
		group.GET("/events", r.handleEvents)
	}
	if r.cfg.Whitelist != nil {
		group.GET("/whitelist", r.handleWhitelistList)
		group.POST("/whitelist", r.handleWhitelistAdd)
		group.DELETE("/whitelist/:name", r.handleWhitelistRemove)
	}
	if r.cfg.Properties != nil {
		group.GET("/properties", r.handlePropertiesGet)
		group.PUT("/properties", r.handlePropertiesPut)
	}
	if r.cfg.Installer != nil {
		group.POST("/install", r.handleInstall)
	}
	if r.cfg.SettingsPath != "" {
		group.PUT("/settings/memory", r.handleMemory)
	}
	if r.cfg.Resources != nil {
		group.GET("/resources", r.handleResources)
	}
	if r.cfg.History != nil {
		group.GET("/history", r.handleHistory)
	}
}

// NewServer builds an http.Server for addr. There is no write timeout since
// /events and /install responses can legitimately run for minutes.
func NewServer(addr string, handler http.Handler, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
