package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "craftvisor"

// States lists every supervisor state, used to keep current_state one-hot.
var States = []string{"offline", "starting", "online", "stopping"}

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful game server launches.",
		},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of game server terminations by reason (exit or kill).",
		}, []string{"reason"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	playersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "players_online",
			Help:      "Players currently on the server, as scraped from its log.",
		},
	)
	consoleLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "lines_total",
			Help:      "Console lines read from the game server by stream.",
		}, []string{"stream"},
	)
	installs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "installer",
			Name:      "install_total",
			Help:      "Artifact installs by result (success or failure).",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, stateTransitions, currentState, playersOnline, consoleLines, installs}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves a specific gatherer, e.g. a private registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		serverStarts.Inc()
	}
}

func IncStop(reason string) {
	if regOK.Load() {
		serverStops.WithLabelValues(reason).Inc()
	}
}

// RecordStateTransition counts the transition and moves the current_state gauge.
func RecordStateTransition(from, to string) {
	if !regOK.Load() {
		return
	}
	if from != to {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
	for _, s := range States {
		var v float64
		if s == to {
			v = 1
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

func SetPlayersOnline(n int) {
	if regOK.Load() {
		playersOnline.Set(float64(n))
	}
}

func IncConsoleLine(stream string) {
	if regOK.Load() {
		consoleLines.WithLabelValues(stream).Inc()
	}
}

func IncInstall(ok bool) {
	if !regOK.Load() {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	installs.WithLabelValues(result).Inc()
}
